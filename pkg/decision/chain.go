package decision

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"
)

// Chain tries multiple oracles in order until one succeeds.
type Chain struct {
	oracles []Oracle
	logger  *slog.Logger
}

// NewChain creates an oracle chain.
// At least one oracle is required.
func NewChain(logger *slog.Logger, oracles ...Oracle) (*Chain, error) {
	if len(oracles) == 0 {
		return nil, ErrOracleUnavailable
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		oracles: oracles,
		logger:  logger.With("component", "decision.chain"),
	}, nil
}

// Name implements Oracle.
func (c *Chain) Name() string { return "chain" }

// Decide tries each oracle until one succeeds. The shared ctx deadline
// bounds the whole chain, so a slow first oracle leaves less time for the
// fallbacks.
func (c *Chain) Decide(ctx context.Context, req *Request) (*MovementCommand, error) {
	var errs []error

	for i, o := range c.oracles {
		cmd, err := o.Decide(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback oracle succeeded",
					"oracle", o.Name(),
					"oracle_index", i,
				)
			}
			return cmd, nil
		}

		errs = append(errs, err)
		c.logger.Warn("oracle failed, trying next",
			"oracle", o.Name(),
			"oracle_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, &ChainError{Errors: errs}
}

// Close closes all oracles.
func (c *Chain) Close() error {
	var err error
	for _, o := range c.oracles {
		err = multierr.Append(err, o.Close())
	}
	return err
}

// Oracles returns the list of oracles in the chain.
func (c *Chain) Oracles() []Oracle {
	return c.oracles
}

// Verify Chain implements Oracle at compile time.
var _ Oracle = (*Chain)(nil)
