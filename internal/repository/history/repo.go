package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Haoxincode/coursechat/internal/domain"
	"github.com/Haoxincode/coursechat/internal/domain/chat"
)

// store is the consumer interface for session history (ISP).
type store interface {
	RPushCapped(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
}

// Repo keeps completed turns per session in a capped Redis list at
// <prefix>session:<id>. Every append refreshes the TTL.
type Repo struct {
	store    store
	prefix   string
	maxTurns int
	ttl      time.Duration
}

// New creates a history repository. An empty prefix uses domain.KeyPrefix.
// maxTurns <= 0 keeps every turn; ttl <= 0 never expires.
func New(s store, prefix string, maxTurns int, ttl time.Duration) *Repo {
	if prefix == "" {
		prefix = domain.KeyPrefix
	}
	return &Repo{store: s, prefix: prefix, maxTurns: maxTurns, ttl: ttl}
}

// Append stores a turn at the end of the session.
func (r *Repo) Append(ctx context.Context, sessionID string, turn chat.Turn) error {
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("marshal turn: %w", err)
	}

	key := r.key(sessionID)
	if err := r.store.RPushCapped(ctx, key, data, int64(r.maxTurns), r.ttl); err != nil {
		return fmt.Errorf("rpush %s: %w", key, err)
	}
	return nil
}

// List returns the stored turns, oldest first. An unknown session yields an empty slice.
func (r *Repo) List(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	key := r.key(sessionID)
	items, err := r.store.LRange(ctx, key, 0, -1)
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	turns := make([]chat.Turn, 0, len(items))
	for i, raw := range items {
		var t chat.Turn
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("decode turn %d of %s: %w", i, key, err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *Repo) key(sessionID string) string {
	return r.prefix + "session:" + sessionID
}
