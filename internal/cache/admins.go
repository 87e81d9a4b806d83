package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultAdminTTL is how long a fetched administrator set stays fresh.
const DefaultAdminTTL = 600 * time.Second

// Directory lists the privileged users of a group.
type Directory interface {
	Administrators(ctx context.Context, groupID int64) ([]int64, error)
}

type adminEntry struct {
	users     map[int64]struct{}
	fetchedAt time.Time
}

// Admins caches administrator sets per group.
//
// A set older than the TTL is refetched. If the refetch fails the stale set
// keeps being used; a group that was never fetched successfully has no
// administrators. Concurrent refreshes for the same group share one call.
type Admins struct {
	dir    Directory
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[int64]adminEntry
}

// AdminsOption configures an Admins cache.
type AdminsOption func(*Admins)

// WithClock overrides the time source.
func WithClock(now func() time.Time) AdminsOption {
	return func(a *Admins) { a.now = now }
}

// WithLogger sets the logger used for refresh failures.
func WithLogger(logger *slog.Logger) AdminsOption {
	return func(a *Admins) { a.logger = logger }
}

// NewAdmins creates an administrator cache over dir. A non-positive ttl
// selects DefaultAdminTTL.
func NewAdmins(dir Directory, ttl time.Duration, opts ...AdminsOption) *Admins {
	if ttl <= 0 {
		ttl = DefaultAdminTTL
	}
	a := &Admins{
		dir:     dir,
		ttl:     ttl,
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[int64]adminEntry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IsAdmin reports whether userID is an administrator of groupID.
func (a *Admins) IsAdmin(ctx context.Context, groupID, userID int64) bool {
	users := a.users(ctx, groupID)
	_, ok := users[userID]
	return ok
}

func (a *Admins) users(ctx context.Context, groupID int64) map[int64]struct{} {
	a.mu.RLock()
	entry, cached := a.entries[groupID]
	a.mu.RUnlock()

	if cached && a.now().Sub(entry.fetchedAt) <= a.ttl {
		return entry.users
	}

	v, err, _ := a.group.Do(strconv.FormatInt(groupID, 10), func() (any, error) {
		ids, err := a.dir.Administrators(ctx, groupID)
		if err != nil {
			return nil, err
		}
		users := make(map[int64]struct{}, len(ids))
		for _, id := range ids {
			users[id] = struct{}{}
		}

		a.mu.Lock()
		a.entries[groupID] = adminEntry{users: users, fetchedAt: a.now()}
		a.mu.Unlock()
		return users, nil
	})
	if err != nil {
		a.logger.Error("Failed to fetch administrators",
			"group_id", groupID,
			"stale", cached,
			"error", err,
		)
		if cached {
			return entry.users
		}
		return nil
	}
	return v.(map[int64]struct{})
}

// Invalidate drops the cached set for a group.
func (a *Admins) Invalidate(groupID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, groupID)
}
