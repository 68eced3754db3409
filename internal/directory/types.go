// Package directory holds the league entities that can be found by location:
// teams, leagues and players looking for a team.
package directory

import (
	"errors"

	"github.com/codr1/leaguely/internal/geo"
)

type Role string

const (
	RolePlayer   Role = "player"
	RoleManager  Role = "manager"
	RoleDirector Role = "director"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrInvalidCoordinate = errors.New("coordinate out of range")
	ErrInvalidRadius     = errors.New("radius must not be negative")
	ErrForbidden         = errors.New("not allowed to manage this team")
	ErrGeocodingDisabled = errors.New("geocoding is not configured")
)

type Team struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	LeagueID  *int64          `json:"leagueId,omitempty"`
	ManagerID *int64          `json:"managerId,omitempty"`
	City      string          `json:"city,omitempty"`
	Location  *geo.Coordinate `json:"location,omitempty"`
}

func (t Team) Coordinate() (geo.Coordinate, bool) {
	return optional(t.Location)
}

type League struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Sport      string          `json:"sport,omitempty"`
	DirectorID *int64          `json:"directorId,omitempty"`
	Location   *geo.Coordinate `json:"location,omitempty"`
}

func (l League) Coordinate() (geo.Coordinate, bool) {
	return optional(l.Location)
}

type Player struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Role         Role            `json:"role"`
	Phone        string          `json:"phone,omitempty"`
	FreeAgent    bool            `json:"freeAgent"`
	Location     *geo.Coordinate `json:"location,omitempty"`
	PasswordHash string          `json:"-"`
}

func (p Player) Coordinate() (geo.Coordinate, bool) {
	return optional(p.Location)
}

func optional(c *geo.Coordinate) (geo.Coordinate, bool) {
	if c == nil {
		return geo.Coordinate{}, false
	}
	return *c, true
}

// LocationTarget names the kind of entity whose location is being set.
type LocationTarget string

const (
	TargetUser LocationTarget = "user"
	TargetTeam LocationTarget = "team"
)
