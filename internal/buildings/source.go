// Package buildings fetches building footprints for a bounding box from the
// extract API, falling back to a direct scan of the columnar release archive.
package buildings

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/model"
)

// Source fetches building footprints intersecting a geographic box. Every
// implementation returns geometry in the same target projected system.
type Source interface {
	Name() string
	Fetch(ctx context.Context, bbox model.BBox) (*FetchResult, error)
}

// FetchResult is the outcome of a successful fetch. Buildings may be empty.
type FetchResult struct {
	Buildings []model.Building
	Source    string
	// Skipped counts features dropped for having no polygonal geometry.
	Skipped int
}

// FallbackSource tries a primary source once and, on any error, a fallback
// source once with the same box. The primary error is logged and dropped.
type FallbackSource struct {
	primary    Source
	fallback   Source
	onFallback func(primaryErr error)
}

// FallbackOption configures a FallbackSource.
type FallbackOption func(*FallbackSource)

// WithFallbackHook registers a callback invoked whenever the fallback
// source is used.
func WithFallbackHook(fn func(primaryErr error)) FallbackOption {
	return func(s *FallbackSource) {
		s.onFallback = fn
	}
}

// NewFallbackSource chains primary and fallback.
func NewFallbackSource(primary, fallback Source, opts ...FallbackOption) *FallbackSource {
	s := &FallbackSource{primary: primary, fallback: fallback}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Source.
func (s *FallbackSource) Name() string {
	return s.primary.Name() + "+" + s.fallback.Name()
}

// Fetch implements Source.
func (s *FallbackSource) Fetch(ctx context.Context, bbox model.BBox) (*FetchResult, error) {
	res, err := s.primary.Fetch(ctx, bbox)
	if err == nil {
		return res, nil
	}

	zap.L().Warn("buildings: primary source failed, using fallback",
		zap.String("primary", s.primary.Name()),
		zap.String("fallback", s.fallback.Name()),
		zap.Error(err),
	)
	if s.onFallback != nil {
		s.onFallback(err)
	}

	return s.fallback.Fetch(ctx, bbox)
}
