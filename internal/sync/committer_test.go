package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrMrsMoo/ambient-weather-heiligers/internal/types"
)

func TestCommitWritesAndConfirms(t *testing.T) {
	store := newMockStore("prod")
	store.seed(types.CategoryImperial, 100) // pre-existing document

	c := NewCommitter(quietLogger())
	result := c.Commit(context.Background(), store, types.CategoryImperial, readingsAt(200, 300))

	assert.NoError(t, result.Err)
	assert.Equal(t, "prod", result.Cluster)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, int64(3), result.TotalAfter)
	assert.Empty(t, result.Errored)
}

func TestCommitEmptyInputIsNoop(t *testing.T) {
	store := newMockStore("prod")

	c := NewCommitter(quietLogger())
	result := c.Commit(context.Background(), store, types.CategoryMetric, nil)

	assert.NoError(t, result.Err)
	assert.Zero(t, result.Attempted)
	assert.Zero(t, result.Written)
	assert.Empty(t, result.Errored)
	assert.Empty(t, store.bulkCalls[types.CategoryMetric], "no remote call for empty input")
}

func TestCommitPartialRejectionsDoNotFailBatch(t *testing.T) {
	store := newMockStore("prod")
	store.bulkReject = []types.BulkError{
		{TimestampMillis: 300, Status: 400, Reason: "mapper_parsing_exception"},
	}

	c := NewCommitter(quietLogger())
	result := c.Commit(context.Background(), store, types.CategoryImperial, readingsAt(200, 300))

	assert.NoError(t, result.Err)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 1, result.Written)
	require.Len(t, result.Errored, 1)
	assert.Equal(t, int64(300), result.Errored[0].TimestampMillis)
}

func TestCommitBulkFailureIsCapturedNotThrown(t *testing.T) {
	store := newMockStore("staging")
	store.bulkErr = errors.New("connection reset by peer")

	c := NewCommitter(quietLogger())
	result := c.Commit(context.Background(), store, types.CategoryImperial, readingsAt(200))

	require.Error(t, result.Err)
	assert.Zero(t, result.Written)
}

func TestCommitCountFailureDoesNotUndoWrite(t *testing.T) {
	store := newMockStore("prod")
	store.countErr = errors.New("timeout")

	c := NewCommitter(quietLogger())
	result := c.Commit(context.Background(), store, types.CategoryImperial, readingsAt(200))

	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Written)
	assert.Equal(t, int64(-1), result.TotalAfter)
}
