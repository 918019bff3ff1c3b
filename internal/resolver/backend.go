package resolver

import (
	"fmt"

	"feedgrid/internal/aggregator"
	"feedgrid/internal/fever"
	"feedgrid/internal/inoreader"
	"feedgrid/internal/miniflux"
)

// Backend holds exactly one aggregator. Construct it with FeverBackend,
// MinifluxBackend or InoreaderBackend; the zero value is not usable.
type Backend struct {
	fever     *fever.Aggregator
	miniflux  *miniflux.Aggregator
	inoreader *inoreader.Aggregator
}

// FeverBackend wraps a Fever aggregator.
func FeverBackend(a *fever.Aggregator) Backend { return Backend{fever: a} }

// MinifluxBackend wraps a Miniflux aggregator.
func MinifluxBackend(a *miniflux.Aggregator) Backend { return Backend{miniflux: a} }

// InoreaderBackend wraps an Inoreader aggregator.
func InoreaderBackend(a *inoreader.Aggregator) Backend { return Backend{inoreader: a} }

// Match calls the function for the backend b holds. Every case must be
// supplied, so adding a backend breaks every call site until it is handled.
func Match[T any](
	b Backend,
	onFever func(*fever.Aggregator) T,
	onMiniflux func(*miniflux.Aggregator) T,
	onInoreader func(*inoreader.Aggregator) T,
) T {
	switch {
	case b.fever != nil:
		return onFever(b.fever)
	case b.miniflux != nil:
		return onMiniflux(b.miniflux)
	case b.inoreader != nil:
		return onInoreader(b.inoreader)
	}
	panic("resolver: empty Backend")
}

// Aggregator returns the base capability tier.
func (b Backend) Aggregator() aggregator.Aggregator {
	return Match(b,
		func(a *fever.Aggregator) aggregator.Aggregator { return a },
		func(a *miniflux.Aggregator) aggregator.Aggregator { return a },
		func(a *inoreader.Aggregator) aggregator.Aggregator { return a },
	)
}

// Capability returns the backend as T, or aggregator.ErrNotSupported
// when the backend lacks that capability.
func Capability[T any](b Backend) (T, error) {
	agg := b.Aggregator()
	if c, ok := agg.(T); ok {
		return c, nil
	}
	var zero T
	return zero, fmt.Errorf("%s: %w", agg.Kind(), aggregator.ErrNotSupported)
}
