package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"diary-client/internal/api"
	"diary-client/internal/persist"
	"diary-client/internal/store"
)

func TestClientSessionFlowAgainstStub(t *testing.T) {
	b := setupStubBackend(t)
	srv := httptest.NewServer(b.router)
	defer srv.Close()

	ctx := context.Background()
	client := api.NewClient(srv.URL, 2*time.Second, nil)
	slot := persist.NewMemorySnapshotStore()
	session := store.NewSessionStore(ctx, client, slot, nil)

	if session.Login(ctx, "alice@x.com", "wrongpw") {
		t.Fatalf("expected wrong password to fail")
	}
	if st := session.State(); st.Error != "Invalid credentials" || st.IsAuthenticated {
		t.Fatalf("unexpected state after failed login: %+v", st)
	}

	if !session.Login(ctx, "alice@x.com", "rightpw") {
		t.Fatalf("expected login to succeed, state=%+v", session.State())
	}
	st := session.State()
	if st.User.ID != b.alice.ID || st.Token == "" || st.Error != "" {
		t.Fatalf("unexpected state after login: %+v", st)
	}
	token := st.Token

	session.CheckAuth(ctx)
	if !session.IsAuthenticated() || session.Token() != token {
		t.Fatalf("expected refresh to keep the session, state=%+v", session.State())
	}

	// Una segunda instancia restaurada del mismo slot comparte la sesion.
	restored := store.NewSessionStore(ctx, client, slot, nil)
	if !restored.IsAuthenticated() || restored.Token() != token {
		t.Fatalf("expected restored session, state=%+v", restored.State())
	}

	session.Logout(ctx)
	session.Wait()

	restored.CheckAuth(ctx)
	after := restored.State()
	if after.IsAuthenticated || after.Token != "" || after.Error != "" {
		t.Fatalf("expected revoked token to log out silently, state=%+v", after)
	}
}
