package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"diary-client/internal/domain"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrUserInactive       = errors.New("user inactive")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidRole        = errors.New("invalid role")
)

type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Role     domain.Role
	GroupID  string
	Inactive bool
}

type directoryEntry struct {
	user         domain.User
	passwordHash []byte
}

// UserDirectory es el directorio de usuarios en memoria del backend de
// desarrollo.
type UserDirectory struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	byID    map[string]*directoryEntry
	byEmail map[string]string
	cost    int
}

func NewUserDirectory(logger *zap.Logger) *UserDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserDirectory{
		logger:  logger,
		byID:    make(map[string]*directoryEntry),
		byEmail: make(map[string]string),
		cost:    bcrypt.DefaultCost,
	}
}

func (d *UserDirectory) CreateUser(_ context.Context, input CreateUserInput) (domain.User, error) {
	email := normalizeEmail(input.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, ErrInvalidEmail
	}
	if !input.Role.Valid() {
		return domain.User{}, ErrInvalidRole
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), d.cost)
	if err != nil {
		return domain.User{}, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = email
	}
	user := domain.User{
		ID:       uuid.NewString(),
		Name:     name,
		Email:    email,
		Role:     input.Role,
		IsActive: !input.Inactive,
	}
	if groupID := strings.TrimSpace(input.GroupID); groupID != "" {
		user.GroupID = &groupID
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[email]; ok {
		return domain.User{}, ErrUserExists
	}
	d.byID[user.ID] = &directoryEntry{user: user, passwordHash: hash}
	d.byEmail[email] = user.ID
	return user, nil
}

func (d *UserDirectory) Authenticate(_ context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.byEmail[email]
	if !ok {
		return domain.User{}, ErrInvalidCredentials
	}
	entry := d.byID[id]
	if err := bcrypt.CompareHashAndPassword(entry.passwordHash, []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if !entry.user.IsActive {
		return domain.User{}, ErrUserInactive
	}
	now := time.Now().UTC()
	entry.user.LastLogin = &now
	return entry.user, nil
}

func (d *UserDirectory) GetByID(_ context.Context, id string) (domain.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	entry, ok := d.byID[id]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return entry.user, nil
}

// Deactivate marca al usuario como inactivo; sus tokens dejan de servir en /auth/me.
func (d *UserDirectory) Deactivate(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry, ok := d.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	entry.user.IsActive = false
	d.logger.Info("user deactivated", zap.String("user_id", id))
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
