package api

// NodeRecord is one flattened node of the remote document.
// Hierarchy is expressed through ParentID; children are not embedded.
type NodeRecord struct {
	// ID assigned by the design tool. Immutable and unique within a session.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name,omitempty"`
	// Type tag (FRAME, COMPONENT, INSTANCE, TEXT, RECTANGLE, GROUP, VECTOR, ...).
	Type string `json:"type,omitempty"`
	// ParentID is a back-reference to the containing node.
	ParentID string `json:"parentId,omitempty"`
	// AbsoluteBoundingBox is the node geometry (optional).
	AbsoluteBoundingBox *Rect `json:"absoluteBoundingBox,omitempty"`
	// Fills and Strokes are raw paint lists.
	Fills   []any `json:"fills,omitempty"`
	Strokes []any `json:"strokes,omitempty"`
	// Effects are raw effect definitions (shadows, blurs).
	Effects []any `json:"effects,omitempty"`
	// CornerRadius of the node, when present.
	CornerRadius *float64 `json:"cornerRadius,omitempty"`
	// Characters is the text content of TEXT nodes.
	Characters string `json:"characters,omitempty"`
	// Style is the text style object of TEXT nodes.
	Style map[string]any `json:"style,omitempty"`
	// StyleID references a shared style.
	StyleID string `json:"styleId,omitempty"`
	// ChildCount is the number of direct children in the source tree.
	ChildCount int `json:"childCount"`
}

// Rect is a bounding box.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SessionStats is written by the export controller when a session finalizes.
type SessionStats struct {
	SessionID      string         `json:"sessionId"`
	ProcessedNodes int            `json:"processedNodes"`
	Batches        int            `json:"batches"`
	RescanRounds   int            `json:"rescanRounds"`
	Duration       string         `json:"duration"`
	DurationMillis int64          `json:"durationMillis"`
	CommandsUsed   map[string]int `json:"commandsUsed"`
	EmptyResults   map[string]int `json:"emptyResults,omitempty"`
	StartedAt      string         `json:"startedAt"`
	FinishedAt     string         `json:"finishedAt"`
}

// ReorganizeStats is the statistics artifact of a reorganization pass.
type ReorganizeStats struct {
	OriginalNodes  int                  `json:"originalNodes"`
	SavedNodes     int                  `json:"savedNodes"`
	DataLoss       int                  `json:"dataLoss"`
	CreatedFolders int                  `json:"createdFolders"`
	CreatedFiles   int                  `json:"createdFiles"`
	TotalSize      int64                `json:"totalSize"`
	ExecutionTime  string               `json:"executionTime"`
	Reconciliation ReconcileSummary     `json:"reconciliation"`
	Steps          map[string]StepStats `json:"steps"`
	Warnings       []string             `json:"warnings,omitempty"`
	SizeComparison SizeComparison       `json:"sizeComparison"`
}

// ReconcileSummary counts what reconciliation did.
type ReconcileSummary struct {
	StructureRecords  int `json:"structureRecords"`
	DuplicatesRemoved int `json:"duplicatesRemoved"`
	Fragments         int `json:"fragments"`
	Enriched          int `json:"enriched"`
	BatchOnly         int `json:"batchOnly"`
}

// StepStats counts folders and files created by one reorganization step.
type StepStats struct {
	Folders int `json:"folders"`
	Files   int `json:"files"`
}

// SizeComparison is the informational before/after size audit.
type SizeComparison struct {
	Before       TreeSize `json:"before"`
	After        TreeSize `json:"after"`
	DeltaBytes   int64    `json:"deltaBytes"`
	DeltaPercent float64  `json:"deltaPercent"`
	Summary      string   `json:"summary"`
}

// TreeSize is the recursive size of a directory tree.
type TreeSize struct {
	Bytes   int64  `json:"bytes"`
	Files   int    `json:"files"`
	Folders int    `json:"folders"`
	Human   string `json:"human"`
}
