package domain

import "time"

// Role identifica el perfil de acceso de un usuario.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleTeacher    Role = "teacher"
	RoleStudent    Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// Group es el grupo de practicas al que pertenece un estudiante.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	GroupID      *string    `json:"group_id,omitempty"`
	Group        *Group     `json:"group,omitempty"`
	ProfileImage *string    `json:"profile_image,omitempty"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func (u User) IsStudent() bool    { return u.Role == RoleStudent }
func (u User) IsTeacher() bool    { return u.Role == RoleTeacher }
func (u User) IsSuperAdmin() bool { return u.Role == RoleSuperAdmin }

// HasRole indica si el usuario tiene alguno de los roles dados.
func (u User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// Clone devuelve una copia que no comparte punteros con u.
func (u User) Clone() User {
	out := u
	if u.GroupID != nil {
		id := *u.GroupID
		out.GroupID = &id
	}
	if u.Group != nil {
		g := *u.Group
		out.Group = &g
	}
	if u.ProfileImage != nil {
		img := *u.ProfileImage
		out.ProfileImage = &img
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	return out
}
