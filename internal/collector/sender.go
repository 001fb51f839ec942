package collector

import (
	"context"

	"github.com/blockedby/tg-digest/internal/logger"
)

// UsernameResolver looks up the public handle of a user id.
type UsernameResolver interface {
	ResolveUsername(ctx context.Context, userID int64) (string, error)
}

// SenderCache maps sender ids to their handle. A nil value records "no handle".
// One cache lives for one extract run.
type SenderCache map[int64]*string

// SenderResolver turns sender ids into handles, at most one lookup per id and cache.
type SenderResolver struct {
	client UsernameResolver
	log    *logger.Logger
}

// NewSenderResolver creates a SenderResolver.
func NewSenderResolver(client UsernameResolver, log *logger.Logger) *SenderResolver {
	if log == nil {
		log = logger.Get()
	}
	return &SenderResolver{client: client, log: log}
}

// Resolve returns the handle of senderID, or nil when it is unknown.
// Lookup failures are cached as nil and never returned.
func (r *SenderResolver) Resolve(ctx context.Context, senderID *int64, cache SenderCache) *string {
	if senderID == nil {
		return nil
	}
	id := *senderID
	if handle, ok := cache[id]; ok {
		return handle
	}

	name, err := r.client.ResolveUsername(ctx, id)
	if err != nil {
		r.log.Debug().Err(err).Int64("sender_id", id).Msg("sender lookup failed")
		cache[id] = nil
		return nil
	}
	if name == "" {
		cache[id] = nil
		return nil
	}

	cache[id] = &name
	return &name
}
