package export

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCounts(counts map[Stage]int) EnterFunc {
	return func(s Stage) (int, error) { return counts[s], nil }
}

func TestTracker_AdvancesOnlyOnMatchingCompletions(t *testing.T) {
	tr := NewTracker(fixedCounts(map[Stage]int{
		StageStructureFetch:       1,
		StageMetadataFanout:       3,
		StageRecursiveNodeBatches: 2,
	}), nil)
	require.NoError(t, tr.Start())
	assert.Equal(t, StageStructureFetch, tr.Current())

	advanced, err := tr.Record(StageStructureFetch)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, StageMetadataFanout, tr.Current())
	assert.Equal(t, 3, tr.Expected())

	for i := 0; i < 2; i++ {
		advanced, err = tr.Record(StageMetadataFanout)
		require.NoError(t, err)
		assert.False(t, advanced)
		// a response for another stage in between is not counted
		advanced, err = tr.Record(StageSpecializedScans)
		require.NoError(t, err)
		assert.False(t, advanced)
	}
	assert.Equal(t, 2, tr.Received())
	assert.Equal(t, 1, tr.Remaining())

	advanced, err = tr.Record(StageMetadataFanout)
	require.NoError(t, err)
	assert.True(t, advanced)
	assert.Equal(t, StageRecursiveNodeBatches, tr.Current())
}

func TestTracker_SkipsZeroExpectedStages(t *testing.T) {
	tr := NewTracker(fixedCounts(map[Stage]int{
		StageStructureFetch:     1,
		StageSelectionAndImages: 1,
	}), nil)
	require.NoError(t, tr.Start())
	_, err := tr.Record(StageStructureFetch)
	require.NoError(t, err)
	assert.Equal(t, StageSelectionAndImages, tr.Current())

	_, err = tr.Record(StageSelectionAndImages)
	require.NoError(t, err)
	assert.Equal(t, StageIdle, tr.Current())
	assert.Equal(t, []Stage{
		StageInit, StageStructureFetch, StageMetadataFanout, StageRecursiveNodeBatches,
		StageSpecializedScans, StageSelectionAndImages, StageRecursiveRescan, StageFinalizing,
	}, tr.Visited())
}

func TestTracker_IdleIgnoresRecords(t *testing.T) {
	tr := NewTracker(nil, nil)
	advanced, err := tr.Record(StageIdle)
	require.NoError(t, err)
	assert.False(t, advanced)

	// every stage expects nothing, so Start runs straight back to idle
	require.NoError(t, tr.Start())
	assert.Equal(t, StageIdle, tr.Current())
}

func TestTracker_EnterErrorStopsAdvance(t *testing.T) {
	boom := errors.New("send failed")
	tr := NewTracker(func(s Stage) (int, error) {
		if s == StageStructureFetch {
			return 0, boom
		}
		return 0, nil
	}, nil)
	err := tr.Start()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StageStructureFetch, tr.Current())

	assert.Error(t, tr.Start(), "cannot start while not idle")
	tr.Reset()
	assert.Equal(t, StageIdle, tr.Current())
}

func TestTracker_CustomNextRepeatsStage(t *testing.T) {
	rounds := 0
	tr := NewTracker(fixedCounts(map[Stage]int{StageRecursiveRescan: 1}), func(s Stage) Stage {
		if s == StageRecursiveRescan && rounds < 2 {
			rounds++
			return StageRecursiveRescan
		}
		return DefaultNext(s)
	})
	require.NoError(t, tr.Start())
	assert.Equal(t, StageRecursiveRescan, tr.Current())
	for i := 0; i < 2; i++ {
		_, err := tr.Record(StageRecursiveRescan)
		require.NoError(t, err)
		assert.Equal(t, StageRecursiveRescan, tr.Current())
	}
	_, err := tr.Record(StageRecursiveRescan)
	require.NoError(t, err)
	assert.Equal(t, StageIdle, tr.Current())
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "recursive-node-batches", StageRecursiveNodeBatches.String())
	assert.Equal(t, "unknown", Stage(42).String())
	assert.Equal(t, StageInit, DefaultNext(StageIdle))
	assert.Equal(t, StageIdle, DefaultNext(StageFinalizing))
}
