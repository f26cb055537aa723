package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

func TestResolveReturnsLatestTimestamp(t *testing.T) {
	store := newMockStore("prod")
	store.seed(types.CategoryImperial, 100, 300, 200)

	br := NewBoundaryResolver(quietLogger())
	b := br.Resolve(context.Background(), store, types.CategoryImperial)

	assert.True(t, b.Present)
	assert.Equal(t, int64(300), b.Millis)
}

func TestResolveEmptyClusterIsAbsent(t *testing.T) {
	store := newMockStore("staging")

	br := NewBoundaryResolver(quietLogger())
	b := br.Resolve(context.Background(), store, types.CategoryMetric)

	assert.False(t, b.Present)
}

func TestResolveQueryFailureIsAbsentNotError(t *testing.T) {
	store := newMockStore("prod")
	store.seed(types.CategoryImperial, 100)
	store.latestErr = errors.New("connection refused")

	br := NewBoundaryResolver(quietLogger())
	b := br.Resolve(context.Background(), store, types.CategoryImperial)

	// Unreachable and empty must be indistinguishable to callers.
	assert.False(t, b.Present)
	assert.Zero(t, b.Millis)
}

func TestResolveIsPerCategory(t *testing.T) {
	store := newMockStore("prod")
	store.seed(types.CategoryImperial, 500)

	br := NewBoundaryResolver(quietLogger())

	imp := br.Resolve(context.Background(), store, types.CategoryImperial)
	met := br.Resolve(context.Background(), store, types.CategoryMetric)

	assert.True(t, imp.Present)
	assert.False(t, met.Present)
}
