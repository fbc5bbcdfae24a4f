package models

import (
	"strings"
	"time"
)

// GuestName is the sentinel identity name granting read-only access.
const GuestName = "guest"

// Role is a participant's self-described role in the field.
type Role string

const (
	RoleObserver  Role = "observer"
	RoleBuilder   Role = "builder"
	RoleReflector Role = "reflector"
	RoleSteward   Role = "steward"
)

// Roles lists the selectable roles.
var Roles = []Role{RoleObserver, RoleBuilder, RoleReflector, RoleSteward}

// ParseRole returns the role named by s, case-insensitively.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range Roles {
		if v == r {
			return r, true
		}
	}
	return "", false
}

// Permissions are the capabilities derived from identity and role.
type Permissions struct {
	CanCreateNodes  bool `json:"canCreateNodes"`
	CanLinkNodes    bool `json:"canLinkNodes"`
	CanEditMetadata bool `json:"canEditMetadata"`
	CanArchiveNodes bool `json:"canArchiveNodes"`
	CanTendNodes    bool `json:"canTendNodes"`
}

// PermissionsFor derives capabilities for an authenticated account. An
// account that has not chosen a role yet can still create, link and tend.
func PermissionsFor(role Role) Permissions {
	switch role {
	case RoleSteward:
		return Permissions{true, true, true, true, true}
	case RoleObserver:
		return Permissions{CanCreateNodes: true}
	default:
		return Permissions{CanCreateNodes: true, CanLinkNodes: true, CanTendNodes: true}
	}
}

// Identity is the session's current user. A nil *Identity is anonymous and
// treated the same as the guest sentinel.
type Identity struct {
	Name        string      `json:"name"`
	Role        Role        `json:"role"`
	UserID      string      `json:"userId,omitempty"`
	Permissions Permissions `json:"permissions"`
}

// Guest returns the read-only guest identity.
func Guest() *Identity {
	return &Identity{Name: GuestName, Role: RoleObserver}
}

// NewAccountIdentity returns an authenticated identity for name.
func NewAccountIdentity(name, userID string, role Role) *Identity {
	return &Identity{Name: name, Role: role, UserID: userID, Permissions: PermissionsFor(role)}
}

// IsGuest reports whether the identity is anonymous or the guest sentinel.
func (id *Identity) IsGuest() bool {
	return id == nil || id.Name == "" || id.Name == GuestName
}

// CanWrite reports whether the identity may perform any write.
func (id *Identity) CanWrite() bool {
	return !id.IsGuest()
}

// SetRole changes the role and recomputes permissions.
func (id *Identity) SetRole(r Role) {
	id.Role = r
	id.Permissions = PermissionsFor(r)
}

// Handle returns the display handle: lowercase, runs of other characters
// collapsed to dots, "guest" when nothing is left.
func (id *Identity) Handle() string {
	if id == nil {
		return GuestName
	}
	return FormatHandle(id.Name)
}

// FormatHandle turns a free-form name into a handle like "ada.lovelace".
func FormatHandle(name string) string {
	var b strings.Builder
	dot := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dot && b.Len() > 0 {
				b.WriteByte('.')
			}
			dot = false
			b.WriteRune(r)
			continue
		}
		dot = true
	}
	if b.Len() == 0 {
		return GuestName
	}
	return b.String()
}

// User is a persisted account profile.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username" validate:"required,min=2"`
	DisplayName  string    `json:"display_name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Role         Role      `json:"role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
