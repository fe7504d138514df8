package redis

import (
	"context"
	"fmt"
	"strconv"
)

// Sequencer hands out monotonically increasing numbers per scope using INCR,
// which is atomic across every process sharing the Redis instance.
type Sequencer struct {
	client *Client
}

func NewSequencer(client *Client) *Sequencer {
	return &Sequencer{client: client}
}

// Seed makes sure the counter for scope starts above floor. It only writes when the
// counter does not exist yet, so it is safe to call on every start-up.
func (s *Sequencer) Seed(ctx context.Context, scope string, floor int64) error {
	if _, err := s.client.SetNX(ctx, s.client.CounterKey(scope), strconv.FormatInt(floor, 10), 0); err != nil {
		return fmt.Errorf("failed to seed counter %s: %w", scope, err)
	}
	return nil
}

// Next returns the next value for scope
func (s *Sequencer) Next(ctx context.Context, scope string) (int64, error) {
	n, err := s.client.Incr(ctx, s.client.CounterKey(scope))
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", scope, err)
	}
	return n, nil
}
