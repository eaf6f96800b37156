package store

import "time"

// Status represents the lifecycle of a paper in the digest pipeline.
//
// Forward progress is strictly ordered: new -> stage1_ok -> stage1_relevant
// -> pdf_downloaded -> text_extracted -> stage2_ok -> emailed. A paper judged
// below the relevance threshold moves to skipped, and any non-terminal paper
// may move to failed.
type Status string

const (
	StatusNew            Status = "new"
	StatusStage1OK       Status = "stage1_ok"
	StatusStage1Relevant Status = "stage1_relevant"
	StatusPDFDownloaded  Status = "pdf_downloaded"
	StatusTextExtracted  Status = "text_extracted"
	StatusStage2OK       Status = "stage2_ok"
	StatusSkipped        Status = "skipped"
	StatusEmailed        Status = "emailed"
	StatusFailed         Status = "failed"
)

var allStatuses = []Status{
	StatusNew,
	StatusStage1OK,
	StatusStage1Relevant,
	StatusPDFDownloaded,
	StatusTextExtracted,
	StatusStage2OK,
	StatusSkipped,
	StatusEmailed,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// processedStatuses are terminal-for-intake states: a paper in one of these
// already produced its outcome and must never be refetched into the pipeline.
var processedStatuses = map[Status]struct{}{
	StatusEmailed:  {},
	StatusSkipped:  {},
	StatusStage2OK: {},
}

// inProgressStatuses are states a paper passes through mid-batch. A crashed
// run leaves papers here; they are not re-entered on the next intake.
var inProgressStatuses = map[Status]struct{}{
	StatusNew:            {},
	StatusStage1OK:       {},
	StatusStage1Relevant: {},
	StatusPDFDownloaded:  {},
	StatusTextExtracted:  {},
}

// IsValid reports whether the status is one of the known lifecycle states.
func (s Status) IsValid() bool {
	_, ok := statusSet[s]
	return ok
}

// IsProcessed reports whether the status is in the processed set.
func (s Status) IsProcessed() bool {
	_, ok := processedStatuses[s]
	return ok
}

// IsInProgress reports whether the status is a mid-batch state.
func (s Status) IsInProgress() bool {
	_, ok := inProgressStatuses[s]
	return ok
}

// Statuses returns every known lifecycle state in pipeline order.
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Record is one paper row with its metadata, pipeline status, and the
// payloads each stage persisted.
type Record struct {
	ID            string
	Title         string
	Authors       []string
	Categories    []string
	Published     string
	SourceUpdated string
	Abstract      string
	PDFURL        string
	Source        string
	Status        Status
	Stage1JSON    string
	Stage2JSON    string
	ErrorMessage  string
	PDFPath       string
	TextChars     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
