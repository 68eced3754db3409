package directory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/leaguely/internal/geo"
)

// DemoPassword is the password of every demo account.
const DemoPassword = "demo"

// DemoRepository is an in-memory directory seeded with fixture data around
// New York. Writes are kept for the life of the process.
type DemoRepository struct {
	mu      sync.RWMutex
	users   []Player
	teams   []Team
	leagues []League
}

func NewDemoRepository() *DemoRepository {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.MinCost)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash demo password, demo logins disabled")
	}

	id := func(v int64) *int64 { return &v }
	at := func(lat, lon float64) *geo.Coordinate { return &geo.Coordinate{Lat: lat, Lon: lon} }

	users := []Player{
		{ID: 1, Name: "Alice Rivera", Email: "alice@demo.leaguely.app", Role: RolePlayer, Location: at(40.7128, -74.0060)},
		{ID: 2, Name: "Ben Okafor", Email: "ben@demo.leaguely.app", Role: RoleManager, Location: at(40.7440, -74.0324)},
		{ID: 3, Name: "Carmen Diaz", Email: "carmen@demo.leaguely.app", Role: RolePlayer, Phone: "+12127365000", FreeAgent: true, Location: at(40.7178, -74.0431)},
		{ID: 4, Name: "Dev Patel", Email: "dev@demo.leaguely.app", Role: RoleDirector, Location: at(40.6782, -73.9442)},
		{ID: 5, Name: "Erin Walsh", Email: "erin@demo.leaguely.app", Role: RolePlayer, FreeAgent: true},
		{ID: 6, Name: "Frank Moore", Email: "frank@demo.leaguely.app", Role: RolePlayer, FreeAgent: true, Location: at(39.9526, -75.1652)},
	}
	for i := range users {
		users[i].PasswordHash = string(hash)
	}

	return &DemoRepository{
		users: users,
		leagues: []League{
			{ID: 1, Name: "Hudson Valley Rec League", Sport: "softball", DirectorID: id(4), Location: at(40.9312, -73.8988)},
			{ID: 2, Name: "Metro Coed Volleyball", Sport: "volleyball", DirectorID: id(4), Location: at(40.6782, -73.9442)},
			{ID: 3, Name: "Delaware Valley Pickleball", Sport: "pickleball", Location: at(39.9526, -75.1652)},
			{ID: 4, Name: "Weekend Kickball Social", Sport: "kickball"},
		},
		teams: []Team{
			{ID: 1, Name: "Hudson Hitters", LeagueID: id(1), ManagerID: id(2), City: "Hoboken", Location: at(40.7440, -74.0324)},
			{ID: 2, Name: "Bronx Bombers Rec", LeagueID: id(1), City: "Bronx", Location: at(40.8448, -73.8648)},
			{ID: 3, Name: "Brooklyn Spikers", LeagueID: id(2), City: "Brooklyn", Location: at(40.6782, -73.9442)},
			{ID: 4, Name: "Liberty Aces", LeagueID: id(2), City: "Jersey City"},
			{ID: 5, Name: "Philly Dinkers", LeagueID: id(3), City: "Philadelphia", Location: at(39.9526, -75.1652)},
		},
	}
}

func (r *DemoRepository) ListTeams(context.Context) ([]Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.teams), nil
}

func (r *DemoRepository) ListLeagues(context.Context) ([]League, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.leagues), nil
}

func (r *DemoRepository) ListFreeAgents(context.Context) ([]Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.users, func(p Player, _ int) bool { return p.FreeAgent }), nil
}

func (r *DemoRepository) GetUser(_ context.Context, id int64) (Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := lo.Find(r.users, func(p Player) bool { return p.ID == id })
	if !ok {
		return Player{}, ErrNotFound
	}
	return p, nil
}

func (r *DemoRepository) GetUserByEmail(_ context.Context, email string) (Player, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	email = strings.TrimSpace(email)
	p, ok := lo.Find(r.users, func(p Player) bool { return strings.EqualFold(p.Email, email) })
	if !ok {
		return Player{}, ErrNotFound
	}
	return p, nil
}

func (r *DemoRepository) GetTeam(_ context.Context, id int64) (Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := lo.Find(r.teams, func(t Team) bool { return t.ID == id })
	if !ok {
		return Team{}, ErrNotFound
	}
	return t, nil
}

func (r *DemoRepository) SetUserLocation(_ context.Context, userID int64, coord *geo.Coordinate) error {
	return r.updateUser(userID, func(p *Player) {
		if coord == nil {
			p.Location = nil
			return
		}
		c := *coord
		p.Location = &c
	})
}

func (r *DemoRepository) SetTeamLocation(_ context.Context, teamID int64, coord geo.Coordinate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.teams, func(t Team) bool { return t.ID == teamID })
	if i < 0 {
		return ErrNotFound
	}
	r.teams[i].Location = &coord
	return nil
}

func (r *DemoRepository) SetFreeAgent(_ context.Context, userID int64, phone string, available bool) error {
	return r.updateUser(userID, func(p *Player) {
		p.Phone = phone
		p.FreeAgent = available
	})
}

func (r *DemoRepository) updateUser(userID int64, fn func(*Player)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.users, func(p Player) bool { return p.ID == userID })
	if i < 0 {
		return ErrNotFound
	}
	fn(&r.users[i])
	return nil
}
