package notifier

import (
	"context"
	"errors"
)

// Multi fans an event out to several delivery backends. Every backend is
// attempted even when an earlier one fails.
type Multi struct {
	backends []Notifier
}

func NewMulti(backends ...Notifier) *Multi {
	return &Multi{backends: backends}
}

func (m *Multi) Notify(ctx context.Context, kind Kind, organizationID uint, eventCtx map[string]string) error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Notify(ctx, kind, organizationID, eventCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
