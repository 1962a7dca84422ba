package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"diary-client/internal/domain"
)

// JWTService emite y valida los tokens de acceso del backend de desarrollo.
type JWTService struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
	revoked   RevokedTokenStore
	now       func() time.Time
}

type Claims struct {
	UserID string      `json:"uid"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
	ErrJWTRevoked = errors.New("jwt revoked")
)

func NewJWTService(secret string, accessTTL time.Duration, revoked RevokedTokenStore) *JWTService {
	if accessTTL <= 0 {
		accessTTL = time.Hour
	}
	if revoked == nil {
		revoked = NewMemoryRevokedTokenStore()
	}
	return &JWTService{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    "diary-stub",
		revoked:   revoked,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *JWTService) IssueAccessToken(user domain.User) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	claims, err := s.parse(accessToken)
	if err != nil {
		return Claims{}, err
	}
	revoked, err := s.revoked.IsRevoked(claims.ID)
	if err != nil {
		return Claims{}, err
	}
	if revoked {
		return Claims{}, ErrJWTRevoked
	}
	return claims, nil
}

// Revoke invalida el token hasta su expiracion natural.
func (s *JWTService) Revoke(accessToken string) error {
	claims, err := s.parse(accessToken)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(claims.ID, ttl)
}

func (s *JWTService) parse(tokenString string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !s.isValidClaims(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) isValidClaims(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return false
	}
	if strings.TrimSpace(claims.ID) == "" || claims.ExpiresAt == nil {
		return false
	}
	return claims.Issuer == s.issuer
}
