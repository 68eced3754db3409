package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/codr1/leaguely/internal/geo"
	"github.com/codr1/leaguely/internal/geocode"
)

// DefaultPhoneRegion is used for numbers entered without a country code.
const DefaultPhoneRegion = "US"

// Service answers "what is near me" queries and keeps locations current.
type Service struct {
	repo     Repository
	geocoder geocode.Geocoder
}

func NewService(repo Repository, geocoder geocode.Geocoder) *Service {
	return &Service{repo: repo, geocoder: geocoder}
}

func (s *Service) Repository() Repository {
	return s.repo
}

// NearbyTeams ranks teams by distance from ref, or from the user's saved
// location when ref is nil. With neither, teams come back in storage order
// without distances. A radius limits results to located teams within it plus
// every unlocated team.
func (s *Service) NearbyTeams(ctx context.Context, userID int64, ref *geo.Coordinate, radius *float64) ([]geo.Ranked[Team], error) {
	origin, err := s.reference(ctx, userID, ref, radius)
	if err != nil {
		return nil, err
	}
	teams, err := s.repo.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return nearby(teams, origin, radius), nil
}

func (s *Service) NearbyLeagues(ctx context.Context, userID int64, ref *geo.Coordinate, radius *float64) ([]geo.Ranked[League], error) {
	origin, err := s.reference(ctx, userID, ref, radius)
	if err != nil {
		return nil, err
	}
	leagues, err := s.repo.ListLeagues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list leagues: %w", err)
	}
	return nearby(leagues, origin, radius), nil
}

// NearbyFreeAgents works like NearbyTeams and never includes the caller.
func (s *Service) NearbyFreeAgents(ctx context.Context, userID int64, ref *geo.Coordinate, radius *float64) ([]geo.Ranked[Player], error) {
	origin, err := s.reference(ctx, userID, ref, radius)
	if err != nil {
		return nil, err
	}
	players, err := s.repo.ListFreeAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list free agents: %w", err)
	}
	players = lo.Filter(players, func(p Player, _ int) bool { return p.ID != userID })
	return nearby(players, origin, radius), nil
}

// reference picks the origin for a nearby query. A nil result means no
// location is known.
func (s *Service) reference(ctx context.Context, userID int64, ref *geo.Coordinate, radius *float64) (*geo.Coordinate, error) {
	if radius != nil && (*radius < 0 || math.IsNaN(*radius)) {
		return nil, ErrInvalidRadius
	}
	if ref != nil {
		if !ref.Valid() {
			return nil, ErrInvalidCoordinate
		}
		return ref, nil
	}

	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	return user.Location, nil
}

func nearby[T geo.Locatable](items []T, origin *geo.Coordinate, radius *float64) []geo.Ranked[T] {
	if origin == nil || radius == nil {
		return geo.SortByDistance(items, origin)
	}
	return geo.NewIndex(items).Nearby(*origin, *radius)
}

// SetLocation saves the user's coordinate; nil clears it.
func (s *Service) SetLocation(ctx context.Context, userID int64, coord *geo.Coordinate) error {
	if coord != nil && !coord.Valid() {
		return ErrInvalidCoordinate
	}
	if err := s.repo.SetUserLocation(ctx, userID, coord); err != nil {
		return fmt.Errorf("set user location: %w", err)
	}
	return nil
}

// Geocode resolves address without saving it anywhere.
func (s *Service) Geocode(ctx context.Context, address string) (geo.Coordinate, error) {
	if s.geocoder == nil {
		return geo.Coordinate{}, ErrGeocodingDisabled
	}
	return s.geocoder.Geocode(ctx, address)
}

// SetLocationFromAddress geocodes address and stores the result on the target.
func (s *Service) SetLocationFromAddress(ctx context.Context, target LocationTarget, id int64, address string) (geo.Coordinate, error) {
	if s.geocoder == nil {
		return geo.Coordinate{}, ErrGeocodingDisabled
	}

	coord, err := s.geocoder.Geocode(ctx, address)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("resolve address: %w", err)
	}

	switch target {
	case TargetUser:
		err = s.repo.SetUserLocation(ctx, id, &coord)
	case TargetTeam:
		err = s.repo.SetTeamLocation(ctx, id, coord)
	default:
		return geo.Coordinate{}, fmt.Errorf("unknown location target %q", target)
	}
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("save %s location: %w", target, err)
	}

	log.Ctx(ctx).Info().
		Str("target", string(target)).
		Int64("id", id).
		Msg("Location updated from address")
	return coord, nil
}

// AuthorizeTeamEdit allows directors and the team's own manager.
func (s *Service) AuthorizeTeamEdit(ctx context.Context, userID, teamID int64) error {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	team, err := s.repo.GetTeam(ctx, teamID)
	if err != nil {
		return fmt.Errorf("load team: %w", err)
	}

	switch user.Role {
	case RoleDirector:
		return nil
	case RoleManager:
		if team.ManagerID != nil && *team.ManagerID == user.ID {
			return nil
		}
	}
	return ErrForbidden
}

// UpdateFreeAgent stores the user's free agent status and contact number.
// A non-empty phone is normalised to E.164.
func (s *Service) UpdateFreeAgent(ctx context.Context, userID int64, phone string, available bool) (Player, error) {
	normalized := ""
	if strings.TrimSpace(phone) != "" {
		var err error
		normalized, err = NormalizePhone(phone, DefaultPhoneRegion)
		if err != nil {
			return Player{}, err
		}
	}

	if err := s.repo.SetFreeAgent(ctx, userID, normalized, available); err != nil {
		return Player{}, fmt.Errorf("set free agent: %w", err)
	}

	player, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Player{}, fmt.Errorf("reload user: %w", err)
	}
	return player, nil
}

// NormalizePhone parses raw in the context of region and formats it as E.164.
func NormalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
