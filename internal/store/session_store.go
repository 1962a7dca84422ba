package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"diary-client/internal/api"
	"diary-client/internal/domain"
	"diary-client/internal/persist"
)

// GenericLoginError se muestra cuando el backend no envia un mensaje propio.
const GenericLoginError = "Login failed. Please try again."

const logoutNotifyTimeout = 5 * time.Second

// Authenticator es el contrato del backend que consume SessionStore.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	Me(ctx context.Context, token string) (domain.User, error)
	Logout(ctx context.Context, token string) error
}

type Status int

const (
	StatusLoggedOut Status = iota
	StatusAuthenticating
	StatusLoggedIn
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusLoggedIn:
		return "logged_in"
	default:
		return "logged_out"
	}
}

// SessionState es una copia inmutable del estado observable de la sesion.
// Version crece con cada cambio confirmado.
type SessionState struct {
	User            *domain.User
	Token           string
	IsAuthenticated bool
	IsLoading       bool
	Error           string
	Status          Status
	Version         uint64
}

// SessionStore es la fuente de verdad de quien esta autenticado y con que
// credencial. Todas las mutaciones pasan por sus metodos.
type SessionStore struct {
	mu     sync.Mutex
	state  SessionState
	auth   Authenticator
	slot   persist.SnapshotStore
	logger *zap.Logger
	subs   observers[SessionState]

	// generation invalida resultados de operaciones superadas por otra
	// operacion posterior (login, checkAuth o logout).
	generation uint64
	logins     int
	refreshes  int

	wg sync.WaitGroup
}

// NewSessionStore crea el store y restaura la sesion persistida si es valida.
func NewSessionStore(ctx context.Context, auth Authenticator, slot persist.SnapshotStore, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slot == nil {
		slot = persist.NewMemorySnapshotStore()
	}
	s := &SessionStore{
		auth:   auth,
		slot:   slot,
		logger: logger,
	}

	snap, err := slot.Load(ctx)
	switch {
	case err != nil:
		logger.Warn("session snapshot unreadable, starting logged out", zap.Error(err))
	case snap.Usable():
		user := snap.User.Clone()
		s.state.User = &user
		s.state.Token = snap.Token
	case snap != nil:
		logger.Info("discarding incomplete session snapshot")
	}
	s.commitLocked()
	return s
}

func (s *SessionStore) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

func (s *SessionStore) Status() Status {
	return s.State().Status
}

func (s *SessionStore) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token
}

func (s *SessionStore) User() *domain.User {
	return s.State().User
}

func (s *SessionStore) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.IsAuthenticated
}

// AuthHeader devuelve el header Authorization para las llamadas propias de
// cada pagina, o "" si no hay sesion.
func (s *SessionStore) AuthHeader() string {
	token := s.Token()
	if token == "" {
		return ""
	}
	return api.AuthHeader(token)
}

// Subscribe registra fn para recibir el estado tras cada cambio confirmado.
func (s *SessionStore) Subscribe(fn func(SessionState)) (unsubscribe func()) {
	return s.subs.subscribe(fn)
}

// Login autentica contra el backend. Nunca propaga errores: el resultado se
// refleja en el valor devuelto y en State().Error.
func (s *SessionStore) Login(ctx context.Context, email, password string) bool {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.logins++
	s.state.Error = ""
	s.commitLocked()
	s.mu.Unlock()
	s.subs.flush()

	res, err := s.callLogin(ctx, email, password)

	s.mu.Lock()
	s.logins--
	if gen != s.generation {
		s.commitLocked()
		s.mu.Unlock()
		s.subs.flush()
		s.logger.Debug("stale login result dropped", zap.Bool("failed", err != nil))
		return false
	}

	if err != nil {
		msg := api.ErrorMessage(err)
		if msg == "" {
			msg = GenericLoginError
		}
		s.state.Error = msg
		s.commitLocked()
		s.mu.Unlock()
		s.subs.flush()
		s.logger.Warn("login failed", zap.Error(err), zap.String("email", email))
		return false
	}

	user := res.User.Clone()
	s.state.User = &user
	s.state.Token = res.Token
	s.state.Error = ""
	s.commitLocked()
	s.saveLocked(ctx)
	s.mu.Unlock()
	s.subs.flush()
	s.logger.Info("login succeeded", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return true
}

// Logout limpia la sesion local. El aviso al backend es best-effort y no
// bloquea al llamador.
func (s *SessionStore) Logout(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	token := s.state.Token
	s.clearSlotLocked(ctx)
	s.state.User = nil
	s.state.Token = ""
	s.state.Error = ""
	s.commitLocked()
	s.mu.Unlock()
	s.subs.flush()

	if token == "" || s.auth == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logoutNotifyTimeout)
		defer cancel()
		if err := s.callLogout(notifyCtx, token); err != nil {
			s.logger.Debug("backend logout failed", zap.Error(err))
		}
	}()
}

func (s *SessionStore) ClearError() {
	s.mu.Lock()
	if s.state.Error == "" {
		s.mu.Unlock()
		return
	}
	s.state.Error = ""
	s.commitLocked()
	s.mu.Unlock()
	s.subs.flush()
}

// CheckAuth revalida el token actual. Un fallo deja la sesion cerrada sin
// registrar Error: un token expirado es un evento esperado.
func (s *SessionStore) CheckAuth(ctx context.Context) {
	s.mu.Lock()
	token := s.state.Token
	if token == "" {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	s.refreshes++
	s.commitLocked()
	s.mu.Unlock()
	s.subs.flush()

	user, err := s.callMe(ctx, token)

	s.mu.Lock()
	s.refreshes--
	if gen != s.generation {
		s.commitLocked()
		s.mu.Unlock()
		s.subs.flush()
		return
	}
	if err != nil {
		s.state.User = nil
		s.state.Token = ""
		s.clearSlotLocked(ctx)
		s.logger.Info("session refresh failed, logging out", zap.Error(err))
	} else {
		fresh := user.Clone()
		s.state.User = &fresh
		s.saveLocked(ctx)
	}
	s.commitLocked()
	s.mu.Unlock()
	s.subs.flush()
}

// UpdateUser reemplaza el perfil completo, p. ej. tras editarlo en otra vista.
func (s *SessionStore) UpdateUser(user domain.User) {
	user = user.Clone()
	s.mu.Lock()
	s.state.User = &user
	if s.state.Token != "" {
		s.saveLocked(context.Background())
	}
	s.commitLocked()
	s.mu.Unlock()
	s.subs.flush()
}

// Wait bloquea hasta que terminen los avisos de logout pendientes.
func (s *SessionStore) Wait() {
	s.wg.Wait()
}

func (s *SessionStore) callLogin(ctx context.Context, email, password string) (res api.LoginResult, err error) {
	if s.auth == nil {
		return api.LoginResult{}, errors.New("authenticator not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("login panic: %v", r)
		}
	}()
	return s.auth.Login(ctx, email, password)
}

func (s *SessionStore) callMe(ctx context.Context, token string) (user domain.User, err error) {
	if s.auth == nil {
		return domain.User{}, errors.New("authenticator not configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session refresh panic: %v", r)
		}
	}()
	return s.auth.Me(ctx, token)
}

func (s *SessionStore) callLogout(ctx context.Context, token string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logout panic: %v", r)
		}
	}()
	return s.auth.Logout(ctx, token)
}

// commitLocked recalcula los campos derivados y encola una copia; el llamador
// hace flush despues de soltar el lock.
func (s *SessionStore) commitLocked() {
	s.state.IsAuthenticated = s.state.User != nil && s.state.Token != ""
	s.state.IsLoading = s.logins+s.refreshes > 0
	switch {
	case s.logins > 0:
		s.state.Status = StatusAuthenticating
	case s.state.IsAuthenticated:
		s.state.Status = StatusLoggedIn
	default:
		s.state.Status = StatusLoggedOut
	}
	s.state.Version++
	s.subs.publish(s.copyLocked())
}

func (s *SessionStore) copyLocked() SessionState {
	st := s.state
	if st.User != nil {
		u := st.User.Clone()
		st.User = &u
	}
	return st
}

func (s *SessionStore) saveLocked(ctx context.Context) {
	snap := domain.SessionSnapshot{
		User:            s.state.User,
		Token:           s.state.Token,
		IsAuthenticated: s.state.User != nil && s.state.Token != "",
	}
	if err := s.slot.Save(context.WithoutCancel(ctx), snap); err != nil {
		s.logger.Warn("persist session failed", zap.Error(err))
	}
}

func (s *SessionStore) clearSlotLocked(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := s.slot.Clear(ctx); err != nil {
		s.logger.Warn("clear persisted session failed", zap.Error(err))
		if err := s.slot.Save(ctx, domain.SessionSnapshot{}); err != nil {
			s.logger.Warn("overwrite persisted session failed", zap.Error(err))
		}
	}
}
