package cmd

import (
	"context"
	"time"

	"go.uber.org/multierr"
)

// shutdown collects stop steps as resources come up and runs them in reverse
// order, so a failure halfway through setup still releases what was started.
type shutdown struct {
	steps []func(ctx context.Context) error
}

func (s *shutdown) add(step func(ctx context.Context) error) {
	s.steps = append(s.steps, step)
}

func (s *shutdown) run(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	for i := len(s.steps) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.steps[i](ctx))
	}
	s.steps = nil
	return err
}
