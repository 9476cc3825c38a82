package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"permission_service/internal/models"
	"permission_service/internal/repository"
)

// fakeCache is a map-backed Cache. Values round-trip through JSON the way
// the Redis-backed implementation does.
type fakeCache struct {
	entries map[string][]byte
	ttls    map[string]time.Duration
}

func (c *fakeCache) SaveStructCached(_ context.Context, key string, model any, ttl time.Duration) error {
	raw, err := json.Marshal(model)
	if err != nil {
		return err
	}
	if c.entries == nil {
		c.entries = make(map[string][]byte)
		c.ttls = make(map[string]time.Duration)
	}
	c.entries[key] = raw
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) GetStructCached(_ context.Context, key string, model any) error {
	raw, ok := c.entries[key]
	if !ok {
		return fmt.Errorf("key %s: %w", key, repository.ErrNotFound)
	}
	return json.Unmarshal(raw, model)
}

func (c *fakeCache) DeleteKey(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *fakeCache) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

func TestResolvePrincipal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	principal, err := f.principals.Resolve(ctx, f.studentID)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if principal.UserID != f.studentID || principal.Role != models.RoleStudent {
		t.Errorf("principal = %+v, want the student's identity", principal)
	}
	if len(principal.TeamIDs) != 1 || principal.TeamIDs[0] != f.teamID {
		t.Errorf("TeamIDs = %v, want the one active team", principal.TeamIDs)
	}

	if _, err := f.principals.Resolve(ctx, f.orgID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("resolving a non-user id: error = %v, want ErrUserNotFound", err)
	}
}

func TestResolvePrincipalCaching(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cache := &fakeCache{}
	principals := NewPrincipalService(f.users, f.teams, f.orgs, cache, 0)

	if _, err := principals.Resolve(ctx, f.studentID); err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}

	// Directory changes are invisible until the cache entry is dropped.
	f.users.users[f.studentID].Role = models.RoleTeacher

	principal, err := principals.Resolve(ctx, f.studentID)
	if err != nil {
		t.Fatalf("cached Resolve() error = %v", err)
	}
	if principal.Role != models.RoleStudent {
		t.Errorf("Role = %q, want the cached student role", principal.Role)
	}

	principals.Invalidate(ctx, f.studentID)

	principal, err = principals.Resolve(ctx, f.studentID)
	if err != nil {
		t.Fatalf("Resolve() after invalidation error = %v", err)
	}
	if principal.Role != models.RoleTeacher {
		t.Errorf("Role = %q, invalidation should surface the new role", principal.Role)
	}
}

func TestResolvePrincipalCacheTTL(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	cache := &fakeCache{}
	principals := NewPrincipalService(f.users, f.teams, f.orgs, cache, 90*time.Second)

	if _, err := principals.Resolve(ctx, f.studentID); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := cache.ttls[principalCacheKey(f.studentID)]; got != 90*time.Second {
		t.Errorf("cached with TTL %v, want the configured 90s", got)
	}

	// A zero TTL falls back to the default instead of caching forever.
	cache = &fakeCache{}
	principals = NewPrincipalService(f.users, f.teams, f.orgs, cache, 0)
	if _, err := principals.Resolve(ctx, f.studentID); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := cache.ttls[principalCacheKey(f.studentID)]; got != defaultPrincipalTTL {
		t.Errorf("cached with TTL %v, want the default", got)
	}
}
