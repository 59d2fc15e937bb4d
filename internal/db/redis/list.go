package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/Haoxincode/coursechat/internal/db"
)

// RPushCapped appends, trims to the last maxLen elements and sets the TTL in a
// single DoMulti round-trip.
func (s *Store) RPushCapped(ctx context.Context, key string, value []byte, maxLen int64, ttl time.Duration) error {
	cmds := []rueidis.Completed{
		s.b().Rpush().Key(key).Element(string(value)).Build(),
	}
	if maxLen > 0 {
		cmds = append(cmds, s.b().Ltrim().Key(key).Start(-maxLen).Stop(-1).Build())
	}
	if ttl > 0 {
		cmds = append(cmds, s.b().Expire().Key(key).Seconds(int64(ttl.Seconds())).Build())
	}

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return &db.Error{Op: db.OpRPush, Err: fmt.Errorf("step %d: %w", i, err)}
		}
	}
	return nil
}

// LRange returns list elements between start and stop (inclusive, negative from the end).
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	cmd := s.b().Lrange().Key(key).Start(start).Stop(stop).Build()
	items, err := s.do(ctx, cmd).AsStrSlice()
	if err != nil {
		return nil, &db.Error{Op: db.OpLRange, Err: err}
	}
	out := make([][]byte, len(items))
	for i, it := range items {
		out[i] = []byte(it)
	}
	return out, nil
}
