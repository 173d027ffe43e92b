package storage

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// Multi saves to every store and combines their errors.
type Multi []Store

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

func (m Multi) Save(ctx context.Context, rec *Record) error {
	var err error
	for _, s := range m {
		if e := s.Save(ctx, rec); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", s.Name(), e))
		}
	}
	return err
}
