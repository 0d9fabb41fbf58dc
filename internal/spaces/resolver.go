// Package spaces resolves storage space ids to space-scoped base URLs.
// Accounts on older servers have no spaces at all; those use the empty
// space id and resolve straight to the account base URL.
package spaces

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/alexjbarnes/cloudsync/internal/errors"
	"github.com/alexjbarnes/cloudsync/internal/models"
)

// cacheTTL is how long a resolved space listing stays valid. Spaces
// change rarely; a short TTL keeps renamed or removed spaces from
// lingering.
const cacheTTL = 5 * time.Minute

// Lister fetches the account's storage spaces.
type Lister interface {
	Spaces(ctx context.Context, serverURL string) ([]models.Space, error)
}

// Resolver maps space ids to base URLs, caching the server's space
// listing between lookups.
type Resolver struct {
	lister    Lister
	serverURL string
	cache     *ttlcache.Cache[string, string]
}

// NewResolver creates a resolver for the given account server URL.
func NewResolver(lister Lister, serverURL string) *Resolver {
	return &Resolver{
		lister:    lister,
		serverURL: serverURL,
		cache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// BaseURLFor returns the base URL for remote operations in the given
// space. The empty space id means a legacy account without spaces and
// resolves to the account server URL itself.
func (r *Resolver) BaseURLFor(ctx context.Context, spaceID string) (string, error) {
	if spaceID == "" {
		return r.serverURL, nil
	}

	if item := r.cache.Get(spaceID); item != nil {
		return item.Value(), nil
	}

	spaces, err := r.lister.Spaces(ctx, r.serverURL)
	if err != nil {
		return "", fmt.Errorf("resolving space %s: %w", spaceID, err)
	}

	var resolved string

	for _, space := range spaces {
		r.cache.Set(space.ID, space.WebDavURL, ttlcache.DefaultTTL)

		if space.ID == spaceID {
			resolved = space.WebDavURL
		}
	}

	if resolved == "" {
		return "", fmt.Errorf("%w: space %s", errors.ErrNotFound, spaceID)
	}

	return resolved, nil
}

// Invalidate drops the cached space listing, forcing the next lookup to
// fetch a fresh one.
func (r *Resolver) Invalidate() {
	r.cache.DeleteAll()
}
