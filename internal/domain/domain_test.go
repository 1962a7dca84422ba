package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUserClone_DoesNotSharePointers(t *testing.T) {
	groupID := "g1"
	img := "/uploads/a.png"
	last := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	u := User{
		ID:           "u1",
		GroupID:      &groupID,
		Group:        &Group{ID: "g1", Name: "Grupo A"},
		ProfileImage: &img,
		LastLogin:    &last,
	}

	c := u.Clone()
	*c.GroupID = "g2"
	c.Group.Name = "changed"
	*c.ProfileImage = "/other.png"
	*c.LastLogin = last.Add(time.Hour)

	if *u.GroupID != "g1" || u.Group.Name != "Grupo A" || *u.ProfileImage != "/uploads/a.png" || !u.LastLogin.Equal(last) {
		t.Fatalf("clone aliases the original: %+v", u)
	}
	if (User{ID: "u2"}).Clone().Group != nil {
		t.Fatalf("expected nil pointers to stay nil")
	}
}

func TestNotificationJSON_DurationInMilliseconds(t *testing.T) {
	n := Notification{ID: "n1", Type: NotificationSuccess, Message: "Saved", Duration: 3 * time.Second}

	raw, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"duration":3000`) {
		t.Fatalf("expected duration in ms, got %s", raw)
	}

	var back Notification
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Duration != 3*time.Second || back.ID != "n1" {
		t.Fatalf("unexpected decoded notification: %+v", back)
	}

	persistent, _ := json.Marshal(Notification{ID: "n2", Type: NotificationInfo})
	if strings.Contains(string(persistent), "duration") {
		t.Fatalf("expected zero duration omitted, got %s", persistent)
	}
}
