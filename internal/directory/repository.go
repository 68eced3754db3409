package directory

import (
	"context"

	"github.com/codr1/leaguely/internal/geo"
)

// Repository is the storage behind the directory. Get methods return
// ErrNotFound for unknown ids.
type Repository interface {
	ListTeams(ctx context.Context) ([]Team, error)
	ListLeagues(ctx context.Context) ([]League, error)
	ListFreeAgents(ctx context.Context) ([]Player, error)
	GetUser(ctx context.Context, id int64) (Player, error)
	GetUserByEmail(ctx context.Context, email string) (Player, error)
	GetTeam(ctx context.Context, id int64) (Team, error)
	// SetUserLocation saves or, with a nil coord, clears the user's location.
	SetUserLocation(ctx context.Context, userID int64, coord *geo.Coordinate) error
	SetTeamLocation(ctx context.Context, teamID int64, coord geo.Coordinate) error
	SetFreeAgent(ctx context.Context, userID int64, phone string, available bool) error
}
