package dzip

// ProgressStage identifies the current phase of a pack operation.
type ProgressStage uint8

const (
	// StageCompressing covers chunking and compressing source files.
	StageCompressing ProgressStage = iota
	// StageWriting covers splitting the finished byte stream across
	// volume files.
	StageWriting
)

// ProgressEvent is a progress update delivered to a ProgressFunc.
type ProgressEvent struct {
	Stage ProgressStage
	// Path is the raw archive path of the source being processed, when
	// the stage is per-file.
	Path       []byte
	BytesDone  uint64
	FilesDone  int
	FilesTotal int
}

// ProgressFunc receives progress updates. Callbacks run on the packing
// goroutine and should be cheap.
type ProgressFunc func(ProgressEvent)
