package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/codr1/leaguely/internal/db"
	"github.com/codr1/leaguely/internal/geo"
)

type SQLRepository struct {
	database *db.DB
}

func NewSQLRepository(database *db.DB) *SQLRepository {
	return &SQLRepository{database: database}
}

const (
	teamColumns   = `id, name, league_id, manager_id, city, lat, lon`
	leagueColumns = `id, name, sport, director_id, lat, lon`
	userColumns   = `id, name, email, role, phone, free_agent, lat, lon, password_hash`
)

func (r *SQLRepository) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := r.database.QueryContext(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query teams: %w", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, team)
	}
	return teams, rows.Err()
}

func (r *SQLRepository) ListLeagues(ctx context.Context) ([]League, error) {
	rows, err := r.database.QueryContext(ctx, `SELECT `+leagueColumns+` FROM leagues ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query leagues: %w", err)
	}
	defer rows.Close()

	var leagues []League
	for rows.Next() {
		var (
			l          League
			directorID sql.NullInt64
			lat, lon   sql.NullFloat64
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.Sport, &directorID, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan league: %w", err)
		}
		l.DirectorID = nullableID(directorID)
		l.Location = location(lat, lon)
		leagues = append(leagues, l)
	}
	return leagues, rows.Err()
}

func (r *SQLRepository) ListFreeAgents(ctx context.Context) ([]Player, error) {
	rows, err := r.database.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE free_agent = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query free agents: %w", err)
	}
	defer rows.Close()

	var players []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (r *SQLRepository) GetUser(ctx context.Context, id int64) (Player, error) {
	row := r.database.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return p, nil
}

func (r *SQLRepository) GetUserByEmail(ctx context.Context, email string) (Player, error) {
	row := r.database.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, strings.TrimSpace(email))
	p, err := scanPlayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Player{}, ErrNotFound
	}
	if err != nil {
		return Player{}, fmt.Errorf("get user by email: %w", err)
	}
	return p, nil
}

func (r *SQLRepository) GetTeam(ctx context.Context, id int64) (Team, error) {
	row := r.database.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = ?`, id)
	team, err := scanTeam(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Team{}, ErrNotFound
	}
	if err != nil {
		return Team{}, fmt.Errorf("get team %d: %w", id, err)
	}
	return team, nil
}

func (r *SQLRepository) SetUserLocation(ctx context.Context, userID int64, coord *geo.Coordinate) error {
	var lat, lon sql.NullFloat64
	if coord != nil {
		lat = sql.NullFloat64{Float64: coord.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: coord.Lon, Valid: true}
	}
	res, err := r.database.ExecContext(ctx, `UPDATE users SET lat = ?, lon = ? WHERE id = ?`, lat, lon, userID)
	if err != nil {
		return fmt.Errorf("update user location: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLRepository) SetTeamLocation(ctx context.Context, teamID int64, coord geo.Coordinate) error {
	res, err := r.database.ExecContext(ctx, `UPDATE teams SET lat = ?, lon = ? WHERE id = ?`, coord.Lat, coord.Lon, teamID)
	if err != nil {
		return fmt.Errorf("update team location: %w", err)
	}
	return requireAffected(res)
}

func (r *SQLRepository) SetFreeAgent(ctx context.Context, userID int64, phone string, available bool) error {
	res, err := r.database.ExecContext(ctx,
		`UPDATE users SET phone = ?, free_agent = ? WHERE id = ?`, phone, available, userID)
	if err != nil {
		return fmt.Errorf("update free agent: %w", err)
	}
	return requireAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (Team, error) {
	var (
		t                   Team
		leagueID, managerID sql.NullInt64
		lat, lon            sql.NullFloat64
	)
	if err := row.Scan(&t.ID, &t.Name, &leagueID, &managerID, &t.City, &lat, &lon); err != nil {
		return Team{}, err
	}
	t.LeagueID = nullableID(leagueID)
	t.ManagerID = nullableID(managerID)
	t.Location = location(lat, lon)
	return t, nil
}

func scanPlayer(row rowScanner) (Player, error) {
	var (
		p        Player
		role     string
		lat, lon sql.NullFloat64
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &role, &p.Phone, &p.FreeAgent, &lat, &lon, &p.PasswordHash); err != nil {
		return Player{}, err
	}
	p.Role = Role(role)
	p.Location = location(lat, lon)
	return p, nil
}

// location returns nil unless both columns are set.
func location(lat, lon sql.NullFloat64) *geo.Coordinate {
	if !lat.Valid || !lon.Valid {
		return nil
	}
	return &geo.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
}

func nullableID(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
