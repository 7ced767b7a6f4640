package entity

type Role string

const (
	RoleTraveller Role = "traveller"
	RoleGuide     Role = "guide"
	// RoleSystem is used by background settlement, never by requests.
	RoleSystem Role = "system"
)

// Actor is the identity the authentication layer attached to a request.
// It is trusted as-is.
type Actor struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
}

func (a Actor) IsTraveller() bool { return a.Role == RoleTraveller }

func (a Actor) IsGuide() bool { return a.Role == RoleGuide }
