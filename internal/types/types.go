// README: Common value objects shared across modules (identifiers, coordinates, roles).
package types

import "fmt"

type ID string

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the point the way the directions API expects ("lat,lng").
func (p Point) String() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// Valid reports whether the coordinates are inside the WGS84 range.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Role is the closed set of identities that can hold a session.
type Role string

const (
	RoleClient Role = "client"
	RoleDriver Role = "driver"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleDriver, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole maps a raw claim value to a Role. Unknown values fall back to client.
func ParseRole(v string) Role {
	r := Role(v)
	if r.Valid() {
		return r
	}
	return RoleClient
}

type Identity struct {
	ID   ID
	Role Role
}
