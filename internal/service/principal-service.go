package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"permission_service/internal/models"
	"permission_service/internal/repository"

	"go.mongodb.org/mongo-driver/v2/bson"
)

const defaultPrincipalTTL = 5 * time.Minute

// PrincipalService resolves a user id into the full identity set grants can
// be addressed to. Resolutions are cached; membership change events
// invalidate the cache.
type PrincipalService struct {
	users UserDirectory
	teams TeamDirectory
	orgs  OrgDirectory
	cache Cache
	ttl   time.Duration
}

func NewPrincipalService(users UserDirectory, teams TeamDirectory, orgs OrgDirectory, cache Cache, ttl time.Duration) *PrincipalService {
	if ttl <= 0 {
		ttl = defaultPrincipalTTL
	}
	return &PrincipalService{
		users: users,
		teams: teams,
		orgs:  orgs,
		cache: cache,
		ttl:   ttl,
	}
}

func principalCacheKey(userID bson.ObjectID) string {
	return "principal:" + userID.Hex()
}

func (s *PrincipalService) Resolve(ctx context.Context, userID bson.ObjectID) (*models.PrincipalContext, error) {
	if s.cache != nil {
		var cached models.PrincipalContext
		if err := s.cache.GetStructCached(ctx, principalCacheKey(userID), &cached); err == nil {
			return &cached, nil
		}
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID.Hex())
		}
		return nil, fmt.Errorf("error resolving user %s: %w", userID.Hex(), err)
	}

	teamIDs, err := s.teams.FindActiveTeamIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error resolving team memberships: %w", err)
	}

	orgIDs, err := s.orgs.FindOrgIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error resolving organization memberships: %w", err)
	}

	principal := &models.PrincipalContext{
		UserID:  user.ID,
		Role:    user.Role,
		TeamIDs: teamIDs,
		OrgIDs:  orgIDs,
	}

	if s.cache != nil {
		if err := s.cache.SaveStructCached(ctx, principalCacheKey(userID), principal, s.ttl); err != nil {
			log.Printf("Failed to cache principal context for %s: %v", userID.Hex(), err)
		}
	}
	return principal, nil
}

// Invalidate drops the cached identity set after a membership change.
func (s *PrincipalService) Invalidate(ctx context.Context, userID bson.ObjectID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteKey(ctx, principalCacheKey(userID)); err != nil {
		log.Printf("Failed to invalidate principal cache for %s: %v", userID.Hex(), err)
	}
}

// InvalidateAll flushes every cached identity set. Used when a membership
// event does not name the affected users.
func (s *PrincipalService) InvalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "principal:*"); err != nil {
		log.Printf("Failed to flush principal cache: %v", err)
	}
}
