package export

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(sent *[]Batch) func(Batch) error {
	return func(b Batch) error {
		*sent = append(*sent, b)
		return nil
	}
}

func TestBatchDispatcher_SingleFlightAndDedup(t *testing.T) {
	d := NewBatchDispatcher(2)
	assert.Equal(t, 3, d.Enqueue([]string{"1:1", "1:2", "1:3", "1:2", ""}))
	assert.Equal(t, 2, d.PendingBatches())

	var sent []Batch
	b, ok, err := d.DispatchNext("c1", collect(&sent))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Batch{Seq: 1, CorrelationID: "c1", IDs: []string{"1:1", "1:2"}}, b)
	assert.True(t, d.Processed().Contains("1:1"), "marked before the response arrives")

	_, _, err = d.DispatchNext("c2", collect(&sent))
	assert.ErrorIs(t, err, ErrBatchInFlight)

	// processed ids are never queued again
	assert.Equal(t, 1, d.Enqueue([]string{"1:1", "1:4"}))

	assert.False(t, d.Resolve(99))
	assert.True(t, d.Resolve(1))
	b, ok, err = d.DispatchNext("c3", collect(&sent))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"1:3", "1:4"}, b.IDs)
	assert.Equal(t, 2, b.Seq)
	d.Resolve(2)

	_, ok, err = d.DispatchNext("c4", collect(&sent))
	require.NoError(t, err)
	assert.False(t, ok, "empty queue is exhausted, not an error")
	assert.Len(t, sent, 2)
	assert.Equal(t, 2, d.Dispatched())
	assert.Equal(t, 4, d.Processed().Len())
}

func TestBatchDispatcher_SendErrorKeepsBatchInFlight(t *testing.T) {
	d := NewBatchDispatcher(0)
	d.Enqueue([]string{"a"})
	boom := errors.New("closed")
	_, ok, err := d.DispatchNext("c", func(Batch) error { return boom })
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
	_, busy := d.InFlight()
	assert.True(t, busy)
	d.Drop()
	_, busy = d.InFlight()
	assert.False(t, busy)
}

func TestCorrelationID_RoundTrip(t *testing.T) {
	id := NewCorrelationID(StageRecursiveNodeBatches, subNodes)
	s := id.String()
	assert.Regexp(t, `^stage4-nodes-[0-9a-f-]{36}$`, s)

	got, err := ParseCorrelationID(s)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "stage4", "stage4-nodes", "stageX-nodes-1", "stage0-nodes-1", "stage9-nodes-1", "job-nodes-1"} {
		_, err := ParseCorrelationID(bad)
		assert.Error(t, err, bad)
	}
}
