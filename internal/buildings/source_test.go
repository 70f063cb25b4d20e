package buildings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackSource_PrimarySucceeds(t *testing.T) {
	primary := &stubSource{name: "extract", res: &FetchResult{Source: "extract"}}
	fallback := &stubSource{name: "archive", res: &FetchResult{Source: "archive"}}

	var hooked bool
	s := NewFallbackSource(primary, fallback, WithFallbackHook(func(error) { hooked = true }))
	res, err := s.Fetch(context.Background(), lucknowBox)
	require.NoError(t, err)
	assert.Equal(t, "extract", res.Source)
	assert.Len(t, primary.calls, 1)
	assert.Empty(t, fallback.calls)
	assert.False(t, hooked)
	assert.Equal(t, "extract+archive", s.Name())
}

func TestFallbackSource_PrimaryFails(t *testing.T) {
	primaryErr := errors.New("extract down")
	primary := &stubSource{name: "extract", err: primaryErr}
	fallback := &stubSource{name: "archive", res: &FetchResult{Source: "archive"}}

	var hookedErr error
	s := NewFallbackSource(primary, fallback, WithFallbackHook(func(err error) { hookedErr = err }))
	res, err := s.Fetch(context.Background(), lucknowBox)
	require.NoError(t, err)
	assert.Equal(t, "archive", res.Source)
	assert.Len(t, primary.calls, 1)
	require.Len(t, fallback.calls, 1)
	assert.Equal(t, lucknowBox, fallback.calls[0])
	assert.Equal(t, primaryErr, hookedErr)
}

func TestFallbackSource_BothFail(t *testing.T) {
	primary := &stubSource{name: "extract", err: errors.New("extract down")}
	fallback := &stubSource{name: "archive", err: errors.New("archive down")}

	_, err := NewFallbackSource(primary, fallback).Fetch(context.Background(), lucknowBox)
	require.Error(t, err)
	assert.Equal(t, "archive down", err.Error())
	assert.NotContains(t, err.Error(), "extract")
	assert.Len(t, primary.calls, 1)
	assert.Len(t, fallback.calls, 1)
}
