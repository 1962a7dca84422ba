package domain

import "strings"

// SessionSnapshot es el subconjunto persistido de la sesion del cliente.
type SessionSnapshot struct {
	User            *User  `json:"user"`
	Token           string `json:"token"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Usable indica si el snapshot contiene un par {user, token} bien formado.
func (s *SessionSnapshot) Usable() bool {
	if s == nil || s.User == nil {
		return false
	}
	return strings.TrimSpace(s.Token) != "" && strings.TrimSpace(s.User.ID) != ""
}
