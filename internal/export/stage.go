package export

// Stage is one phase of the export pipeline. The numeric value doubles as
// the stage number in correlation ids ("stage4-nodes-...").
type Stage int

const (
	StageIdle Stage = iota
	StageInit
	StageStructureFetch
	StageMetadataFanout
	StageRecursiveNodeBatches
	StageSpecializedScans
	StageSelectionAndImages
	StageRecursiveRescan
	StageFinalizing
)

var stageNames = map[Stage]string{
	StageIdle:                 "idle",
	StageInit:                 "init",
	StageStructureFetch:       "structure-fetch",
	StageMetadataFanout:       "metadata-fanout",
	StageRecursiveNodeBatches: "recursive-node-batches",
	StageSpecializedScans:     "specialized-scans",
	StageSelectionAndImages:   "selection-and-images",
	StageRecursiveRescan:      "recursive-rescan",
	StageFinalizing:           "finalizing",
}

func (s Stage) String() string {
	if n, ok := stageNames[s]; ok {
		return n
	}
	return "unknown"
}

// DefaultNext is the fixed stage order. Finalizing returns to Idle, and
// Idle re-arms to Init for the next session.
func DefaultNext(s Stage) Stage {
	switch s {
	case StageIdle:
		return StageInit
	case StageFinalizing:
		return StageIdle
	default:
		if s > StageIdle && s < StageFinalizing {
			return s + 1
		}
		return StageIdle
	}
}

// isBatchStage reports whether the stage drains the batch dispatcher.
func isBatchStage(s Stage) bool {
	return s == StageRecursiveNodeBatches || s == StageRecursiveRescan
}
