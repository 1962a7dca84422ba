package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"diary-client/internal/api"
	"diary-client/internal/domain"
	"diary-client/internal/persist"
)

type fakeAuthenticator struct {
	mu           sync.Mutex
	loginFn      func(ctx context.Context, email, password string) (api.LoginResult, error)
	meFn         func(ctx context.Context, token string) (domain.User, error)
	logoutErr    error
	loginCalls   int
	meCalls      int
	logoutTokens []string
}

func (f *fakeAuthenticator) Login(ctx context.Context, email, password string) (api.LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return api.LoginResult{}, errors.New("login not stubbed")
	}
	return fn(ctx, email, password)
}

func (f *fakeAuthenticator) Me(ctx context.Context, token string) (domain.User, error) {
	f.mu.Lock()
	f.meCalls++
	fn := f.meFn
	f.mu.Unlock()
	if fn == nil {
		return domain.User{}, errors.New("me not stubbed")
	}
	return fn(ctx, token)
}

func (f *fakeAuthenticator) Logout(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, token)
	return f.logoutErr
}

func (f *fakeAuthenticator) calls() (login, me int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.meCalls
}

func alice() domain.User {
	return domain.User{ID: "u1", Name: "Alice", Email: "alice@x.com", Role: domain.RoleStudent, IsActive: true}
}

func succeedLogin(user domain.User, token string) func(context.Context, string, string) (api.LoginResult, error) {
	return func(context.Context, string, string) (api.LoginResult, error) {
		return api.LoginResult{User: user, Token: token}, nil
	}
}

func newLoggedInStore(t *testing.T, auth *fakeAuthenticator) (*SessionStore, persist.SnapshotStore) {
	t.Helper()
	slot := persist.NewMemorySnapshotStore()
	if err := slot.Save(context.Background(), domain.SessionSnapshot{User: ptr(alice()), Token: "tok123", IsAuthenticated: true}); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	s := NewSessionStore(context.Background(), auth, slot, nil)
	if !s.IsAuthenticated() {
		t.Fatalf("expected restored session")
	}
	return s, slot
}

func ptr[T any](v T) *T { return &v }

func assertLoggedOut(t *testing.T, st SessionState) {
	t.Helper()
	if st.User != nil || st.Token != "" || st.IsAuthenticated || st.Status != StatusLoggedOut {
		t.Fatalf("expected logged out state, got %+v", st)
	}
}

func TestSessionStore_LoginSuccess(t *testing.T) {
	auth := &fakeAuthenticator{loginFn: succeedLogin(alice(), "tok123")}
	slot := persist.NewMemorySnapshotStore()
	s := NewSessionStore(context.Background(), auth, slot, nil)

	if !s.Login(context.Background(), "alice@x.com", "rightpw") {
		t.Fatalf("expected login success")
	}

	st := s.State()
	if !st.IsAuthenticated || st.User == nil || st.Token != "tok123" || st.IsLoading || st.Error != "" {
		t.Fatalf("unexpected state after login: %+v", st)
	}
	if st.User.ID != "u1" || st.Status != StatusLoggedIn {
		t.Fatalf("unexpected user/status: %+v", st)
	}

	snap, err := slot.Load(context.Background())
	if err != nil || !snap.Usable() || snap.Token != "tok123" || !snap.IsAuthenticated {
		t.Fatalf("expected persisted session, got %+v,%v", snap, err)
	}
}

func TestSessionStore_LoginFailure(t *testing.T) {
	t.Run("server message", func(t *testing.T) {
		auth := &fakeAuthenticator{loginFn: func(context.Context, string, string) (api.LoginResult, error) {
			return api.LoginResult{}, &api.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
		}}
		slot := persist.NewMemorySnapshotStore()
		s := NewSessionStore(context.Background(), auth, slot, nil)

		if s.Login(context.Background(), "alice@x.com", "wrongpw") {
			t.Fatalf("expected login failure")
		}
		st := s.State()
		if st.Error != "Invalid credentials" || st.IsLoading {
			t.Fatalf("unexpected state: %+v", st)
		}
		assertLoggedOut(t, st)
		if snap, _ := slot.Load(context.Background()); snap != nil {
			t.Fatalf("expected nothing persisted, got %+v", snap)
		}
	})

	t.Run("transport failure uses generic message", func(t *testing.T) {
		auth := &fakeAuthenticator{loginFn: func(context.Context, string, string) (api.LoginResult, error) {
			return api.LoginResult{}, api.ErrTransport
		}}
		s := NewSessionStore(context.Background(), auth, nil, nil)

		if s.Login(context.Background(), "", "") {
			t.Fatalf("expected login failure")
		}
		if st := s.State(); st.Error != GenericLoginError || st.IsLoading || st.IsAuthenticated {
			t.Fatalf("unexpected state: %+v", st)
		}
	})

	t.Run("panicking authenticator", func(t *testing.T) {
		auth := &fakeAuthenticator{loginFn: func(context.Context, string, string) (api.LoginResult, error) {
			panic("boom")
		}}
		s := NewSessionStore(context.Background(), auth, nil, nil)

		if s.Login(context.Background(), "a", "b") {
			t.Fatalf("expected login failure")
		}
		if st := s.State(); st.IsLoading || st.Error != GenericLoginError {
			t.Fatalf("expected cleanup after panic, got %+v", st)
		}
	})

	t.Run("previous session untouched", func(t *testing.T) {
		auth := &fakeAuthenticator{}
		s, _ := newLoggedInStore(t, auth)
		auth.loginFn = func(context.Context, string, string) (api.LoginResult, error) {
			return api.LoginResult{}, &api.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
		}

		if s.Login(context.Background(), "other@x.com", "bad") {
			t.Fatalf("expected login failure")
		}
		st := s.State()
		if st.User == nil || st.User.ID != "u1" || st.Token != "tok123" || st.IsLoading {
			t.Fatalf("expected previous user/token kept, got %+v", st)
		}
	})

	t.Run("new attempt clears previous error", func(t *testing.T) {
		auth := &fakeAuthenticator{loginFn: func(context.Context, string, string) (api.LoginResult, error) {
			return api.LoginResult{}, &api.APIError{Status: http.StatusUnauthorized, Message: "Invalid credentials"}
		}}
		s := NewSessionStore(context.Background(), auth, nil, nil)
		s.Login(context.Background(), "a", "b")

		var sawCleared bool
		s.Subscribe(func(st SessionState) {
			if st.IsLoading && st.Error == "" {
				sawCleared = true
			}
		})
		auth.loginFn = succeedLogin(alice(), "tok123")
		if !s.Login(context.Background(), "a", "b") {
			t.Fatalf("expected login success")
		}
		if !sawCleared {
			t.Fatalf("expected error cleared when the attempt started")
		}
	})
}

func TestSessionStore_LoadingDuringLogin(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	auth := &fakeAuthenticator{loginFn: func(ctx context.Context, _, _ string) (api.LoginResult, error) {
		close(started)
		<-release
		return api.LoginResult{User: alice(), Token: "tok123"}, nil
	}}
	s := NewSessionStore(context.Background(), auth, nil, nil)

	done := make(chan bool)
	go func() { done <- s.Login(context.Background(), "alice@x.com", "rightpw") }()

	<-started
	if st := s.State(); !st.IsLoading || st.Status != StatusAuthenticating || st.IsAuthenticated {
		t.Fatalf("expected authenticating state, got %+v", st)
	}
	close(release)
	if !<-done {
		t.Fatalf("expected login success")
	}
	if st := s.State(); st.IsLoading || st.Status != StatusLoggedIn {
		t.Fatalf("expected settled state, got %+v", st)
	}
}

func TestSessionStore_Logout(t *testing.T) {
	auth := &fakeAuthenticator{logoutErr: errors.New("server down")}
	s, slot := newLoggedInStore(t, auth)
	auth.loginFn = func(context.Context, string, string) (api.LoginResult, error) {
		return api.LoginResult{}, &api.APIError{Status: 401, Message: "Invalid credentials"}
	}
	s.Login(context.Background(), "a", "b")

	s.Logout(context.Background())
	s.Wait()

	st := s.State()
	assertLoggedOut(t, st)
	if st.Error != "" {
		t.Fatalf("expected error cleared, got %q", st.Error)
	}
	if snap, _ := slot.Load(context.Background()); snap.Usable() {
		t.Fatalf("expected no usable persisted session, got %+v", snap)
	}
	if len(auth.logoutTokens) != 1 || auth.logoutTokens[0] != "tok123" {
		t.Fatalf("expected best-effort backend logout, got %v", auth.logoutTokens)
	}

	s.Logout(context.Background())
	s.Wait()
	assertLoggedOut(t, s.State())
	if len(auth.logoutTokens) != 1 {
		t.Fatalf("expected no backend call without token, got %v", auth.logoutTokens)
	}
}

type failingClearSlot struct {
	persist.SnapshotStore
}

func (f failingClearSlot) Clear(context.Context) error { return errors.New("clear failed") }

func TestSessionStore_LogoutOverwritesSlotWhenClearFails(t *testing.T) {
	inner := persist.NewMemorySnapshotStore()
	slot := failingClearSlot{SnapshotStore: inner}
	auth := &fakeAuthenticator{loginFn: succeedLogin(alice(), "tok123")}
	s := NewSessionStore(context.Background(), auth, slot, nil)
	s.Login(context.Background(), "a", "b")

	s.Logout(context.Background())
	s.Wait()

	snap, err := inner.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Usable() {
		t.Fatalf("expected unusable snapshot after logout, got %+v", snap)
	}
}

func TestSessionStore_ClearError(t *testing.T) {
	auth := &fakeAuthenticator{loginFn: func(context.Context, string, string) (api.LoginResult, error) {
		return api.LoginResult{}, errors.New("boom")
	}}
	s := NewSessionStore(context.Background(), auth, nil, nil)
	s.Login(context.Background(), "a", "b")

	var events int
	s.Subscribe(func(SessionState) { events++ })

	s.ClearError()
	s.ClearError()
	if s.State().Error != "" {
		t.Fatalf("expected error cleared")
	}
	if events != 1 {
		t.Fatalf("expected a single change notification, got %d", events)
	}
}

func TestSessionStore_CheckAuth(t *testing.T) {
	t.Run("no token is a no-op", func(t *testing.T) {
		auth := &fakeAuthenticator{}
		s := NewSessionStore(context.Background(), auth, nil, nil)
		before := s.State()

		s.CheckAuth(context.Background())

		if after := s.State(); after != before {
			t.Fatalf("expected no state change, before=%+v after=%+v", before, after)
		}
		if _, me := auth.calls(); me != 0 {
			t.Fatalf("expected no network call, got %d", me)
		}
	})

	t.Run("success refreshes user", func(t *testing.T) {
		auth := &fakeAuthenticator{}
		s, slot := newLoggedInStore(t, auth)
		refreshed := alice()
		refreshed.Name = "Alice Cooper"
		var gotToken string
		auth.meFn = func(_ context.Context, token string) (domain.User, error) {
			gotToken = token
			return refreshed, nil
		}

		s.CheckAuth(context.Background())

		st := s.State()
		if gotToken != "tok123" {
			t.Fatalf("expected current token sent, got %q", gotToken)
		}
		if !st.IsAuthenticated || st.Token != "tok123" || st.User.Name != "Alice Cooper" || st.IsLoading {
			t.Fatalf("unexpected state: %+v", st)
		}
		snap, _ := slot.Load(context.Background())
		if snap.User.Name != "Alice Cooper" {
			t.Fatalf("expected refreshed user persisted, got %+v", snap.User)
		}
	})

	t.Run("failure logs out silently", func(t *testing.T) {
		auth := &fakeAuthenticator{meFn: func(context.Context, string) (domain.User, error) {
			return domain.User{}, &api.APIError{Status: http.StatusUnauthorized, Message: "token expired"}
		}}
		s, slot := newLoggedInStore(t, auth)

		s.CheckAuth(context.Background())

		st := s.State()
		assertLoggedOut(t, st)
		if st.Error != "" || st.IsLoading {
			t.Fatalf("expected silent failure, got %+v", st)
		}
		if snap, _ := slot.Load(context.Background()); snap != nil {
			t.Fatalf("expected slot cleared, got %+v", snap)
		}
	})

	t.Run("failure keeps an existing error", func(t *testing.T) {
		auth := &fakeAuthenticator{}
		s, _ := newLoggedInStore(t, auth)
		auth.loginFn = func(context.Context, string, string) (api.LoginResult, error) {
			return api.LoginResult{}, &api.APIError{Status: 401, Message: "Invalid credentials"}
		}
		s.Login(context.Background(), "a", "b")
		auth.meFn = func(context.Context, string) (domain.User, error) {
			return domain.User{}, api.ErrTransport
		}

		s.CheckAuth(context.Background())

		if st := s.State(); st.Error != "Invalid credentials" || st.IsAuthenticated {
			t.Fatalf("expected error unchanged and logged out, got %+v", st)
		}
	})
}

func TestSessionStore_UpdateUser(t *testing.T) {
	auth := &fakeAuthenticator{}
	s, slot := newLoggedInStore(t, auth)

	updated := alice()
	updated.ProfileImage = ptr("/uploads/alice.png")
	s.UpdateUser(updated)

	st := s.State()
	if st.Token != "tok123" || !st.IsAuthenticated || *st.User.ProfileImage != "/uploads/alice.png" {
		t.Fatalf("unexpected state: %+v", st)
	}
	snap, _ := slot.Load(context.Background())
	if snap.User.ProfileImage == nil {
		t.Fatalf("expected updated user persisted")
	}

	st.User.Name = "mutated"
	if s.User().Name == "mutated" {
		t.Fatalf("state copies must not alias the store")
	}
}

func TestSessionStore_RestoresSnapshot(t *testing.T) {
	ctx := context.Background()

	t.Run("usable snapshot", func(t *testing.T) {
		s, _ := newLoggedInStore(t, &fakeAuthenticator{})
		if s.Status() != StatusLoggedIn || s.AuthHeader() != "Bearer tok123" {
			t.Fatalf("unexpected restored store: %+v", s.State())
		}
	})

	t.Run("incomplete snapshot", func(t *testing.T) {
		slot := persist.NewMemorySnapshotStore()
		_ = slot.Save(ctx, domain.SessionSnapshot{Token: "tok123", IsAuthenticated: true})
		s := NewSessionStore(ctx, &fakeAuthenticator{}, slot, nil)
		assertLoggedOut(t, s.State())
		if s.AuthHeader() != "" {
			t.Fatalf("expected empty auth header")
		}
	})

	t.Run("stale authenticated flag is recomputed", func(t *testing.T) {
		slot := persist.NewMemorySnapshotStore()
		_ = slot.Save(ctx, domain.SessionSnapshot{User: ptr(alice()), Token: "tok123", IsAuthenticated: false})
		s := NewSessionStore(ctx, &fakeAuthenticator{}, slot, nil)
		if !s.IsAuthenticated() {
			t.Fatalf("expected authenticated from a complete pair")
		}
	})
}

func TestSessionStore_StaleLoginDropped(t *testing.T) {
	releaseFirst := make(chan struct{})
	firstStarted := make(chan struct{})
	auth := &fakeAuthenticator{}
	auth.loginFn = func(_ context.Context, email, _ string) (api.LoginResult, error) {
		if email == "slow@x.com" {
			close(firstStarted)
			<-releaseFirst
			return api.LoginResult{User: domain.User{ID: "slow"}, Token: "slow-token"}, nil
		}
		return api.LoginResult{User: alice(), Token: "tok123"}, nil
	}
	s := NewSessionStore(context.Background(), auth, nil, nil)

	firstDone := make(chan bool)
	go func() { firstDone <- s.Login(context.Background(), "slow@x.com", "pw") }()
	<-firstStarted

	if !s.Login(context.Background(), "alice@x.com", "rightpw") {
		t.Fatalf("expected second login to succeed")
	}
	if !s.State().IsLoading {
		t.Fatalf("expected loading while the first attempt is still in flight")
	}

	close(releaseFirst)
	if <-firstDone {
		t.Fatalf("expected superseded login to report false")
	}
	st := s.State()
	if st.User.ID != "u1" || st.Token != "tok123" || st.IsLoading {
		t.Fatalf("expected latest login to win, got %+v", st)
	}
}

func TestSessionStore_LogoutSupersedesInFlightLogin(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	auth := &fakeAuthenticator{loginFn: func(context.Context, string, string) (api.LoginResult, error) {
		close(started)
		<-release
		return api.LoginResult{User: alice(), Token: "tok123"}, nil
	}}
	s := NewSessionStore(context.Background(), auth, nil, nil)

	done := make(chan bool)
	go func() { done <- s.Login(context.Background(), "a", "b") }()
	<-started
	s.Logout(context.Background())
	close(release)

	if <-done {
		t.Fatalf("expected login superseded by logout")
	}
	st := s.State()
	assertLoggedOut(t, st)
	if st.IsLoading {
		t.Fatalf("expected loading cleared")
	}
}

func TestSessionStore_SubscribeVersions(t *testing.T) {
	auth := &fakeAuthenticator{loginFn: succeedLogin(alice(), "tok123")}
	s := NewSessionStore(context.Background(), auth, nil, nil)

	var states []SessionState
	unsubscribe := s.Subscribe(func(st SessionState) { states = append(states, st) })

	s.Login(context.Background(), "a", "b")
	s.Logout(context.Background())
	s.Wait()
	unsubscribe()
	s.ClearError()
	s.UpdateUser(alice())

	if len(states) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(states))
	}
	if !states[0].IsLoading || states[1].IsLoading || !states[1].IsAuthenticated || states[2].IsAuthenticated {
		t.Fatalf("unexpected sequence: %+v", states)
	}
	for i := 1; i < len(states); i++ {
		if states[i].Version <= states[i-1].Version {
			t.Fatalf("expected increasing versions, got %d then %d", states[i-1].Version, states[i].Version)
		}
	}
}

func TestSessionStore_WithHTTPBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
		case "/auth/me":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"token expired"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := api.NewClient(srv.URL, time.Second, nil)

	s := NewSessionStore(context.Background(), client, nil, nil)
	if s.Login(context.Background(), "alice@x.com", "wrongpw") {
		t.Fatalf("expected login failure")
	}
	if st := s.State(); st.Error != "Invalid credentials" || st.IsAuthenticated {
		t.Fatalf("unexpected state: %+v", st)
	}

	slot := persist.NewMemorySnapshotStore()
	_ = slot.Save(context.Background(), domain.SessionSnapshot{User: ptr(alice()), Token: "tok123", IsAuthenticated: true})
	restored := NewSessionStore(context.Background(), client, slot, nil)
	restored.CheckAuth(context.Background())
	st := restored.State()
	assertLoggedOut(t, st)
	if st.Error != "" {
		t.Fatalf("expected no error after refresh failure, got %q", st.Error)
	}
}

func TestSessionStore_StateDoesNotAliasNestedFields(t *testing.T) {
	withGroup := alice()
	withGroup.GroupID = ptr("g1")
	withGroup.Group = &domain.Group{ID: "g1", Name: "Grupo A"}
	withGroup.ProfileImage = ptr("/uploads/alice.png")
	auth := &fakeAuthenticator{loginFn: succeedLogin(withGroup, "tok123")}
	s := NewSessionStore(context.Background(), auth, nil, nil)

	var delivered *domain.User
	s.Subscribe(func(st SessionState) { delivered = st.User })
	if !s.Login(context.Background(), "alice@x.com", "rightpw") {
		t.Fatalf("expected login to succeed")
	}

	got := s.State().User
	got.Group.Name = "changed"
	*got.GroupID = "g2"
	*got.ProfileImage = "/other.png"
	delivered.Group.Name = "changed by subscriber"
	s.User().Group.Name = "changed via accessor"
	withGroup.Group.Name = "changed by backend"

	u := s.State().User
	if u.Group.Name != "Grupo A" || *u.GroupID != "g1" || *u.ProfileImage != "/uploads/alice.png" {
		t.Fatalf("store mutated from outside: %+v %+v", u, u.Group)
	}

	edited := u.Clone()
	edited.Group.Name = "Grupo B"
	s.UpdateUser(edited)
	edited.Group.Name = "changed after update"
	if s.User().Group.Name != "Grupo B" {
		t.Fatalf("expected update to be copied, got %q", s.User().Group.Name)
	}
}
