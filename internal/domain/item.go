package domain

// Status enumerates the work item lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Metrics captures sizes and rendered dimensions. Processed fields stay zero
// until the item reaches StatusDone.
type Metrics struct {
	OriginalSize  int64 `json:"original_size"`
	ProcessedSize int64 `json:"processed_size"`
	Width         int   `json:"width"`
	Height        int   `json:"height"`
}

// Rendered is the re-encoded artifact produced by a successful transcode.
type Rendered struct {
	Data     []byte
	MIMEType string
	Encoding Encoding
}

// WorkItem is one submitted image and its processing state. Byte slices are
// never mutated after assignment so copies may share them.
type WorkItem struct {
	ID         string
	Name       string
	MIMEType   string
	Source     []byte
	Rendered   *Rendered
	Status     Status
	Metrics    Metrics
	Descriptor *Descriptor
	Error      string
}

// Clone returns a copy that does not alias the mutable pointer fields.
func (w WorkItem) Clone() WorkItem {
	out := w
	if w.Rendered != nil {
		r := *w.Rendered
		out.Rendered = &r
	}
	if w.Descriptor != nil {
		d := *w.Descriptor
		out.Descriptor = &d
	}
	return out
}

// HasDescriptor reports whether AI copy is attached.
func (w WorkItem) HasDescriptor() bool {
	return w.Descriptor != nil
}

// BestImage returns the rendered artifact when present, the source otherwise.
func (w WorkItem) BestImage() []byte {
	if w.Rendered != nil && len(w.Rendered.Data) > 0 {
		return w.Rendered.Data
	}
	return w.Source
}

// CompressionRatio returns 1 - processed/original for done items. The second
// value is false when the ratio is meaningless.
func (w WorkItem) CompressionRatio() (float64, bool) {
	if w.Status != StatusDone || w.Metrics.OriginalSize <= 0 {
		return 0, false
	}
	return 1 - float64(w.Metrics.ProcessedSize)/float64(w.Metrics.OriginalSize), true
}

// Descriptor is AI-produced listing copy for one image. It is trusted output
// of an external system; only AltText is consumed programmatically.
type Descriptor struct {
	Title       string `json:"title"`
	AltText     string `json:"alt_text"`
	Description string `json:"description"`
	PriceGuess  string `json:"price_guess"`
}

// IsEmpty reports whether every field is blank.
func (d Descriptor) IsEmpty() bool {
	return d.Title == "" && d.AltText == "" && d.Description == "" && d.PriceGuess == ""
}
