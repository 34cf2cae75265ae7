package batch

import "listingprep/internal/domain"

// Snapshot is an immutable view of the collection at one instant.
type Snapshot struct {
	Items []domain.WorkItem
}

// Count returns how many items are in status s.
func (s Snapshot) Count(status domain.Status) int {
	n := 0
	for _, item := range s.Items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// Done returns the items that have a rendered artifact.
func (s Snapshot) Done() []domain.WorkItem {
	var out []domain.WorkItem
	for _, item := range s.Items {
		if item.Status == domain.StatusDone && item.Rendered != nil {
			out = append(out, item)
		}
	}
	return out
}

// Observer receives a snapshot after every mutation. Notify is called
// synchronously from the mutating goroutine and must not block for long.
type Observer interface {
	Notify(Snapshot)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Snapshot)

func (f ObserverFunc) Notify(s Snapshot) { f(s) }

// Summary totals one run.
type Summary struct {
	Total          int   `json:"total"`
	Done           int   `json:"done"`
	Failed         int   `json:"failed"`
	Skipped        int   `json:"skipped"`
	Described      int   `json:"described"`
	DescribeFailed int   `json:"describe_failed"`
	OriginalBytes  int64 `json:"original_bytes"`
	ProcessedBytes int64 `json:"processed_bytes"`
}

// Ratio is the size saving across all done items, 0 when nothing is done.
func (s Summary) Ratio() float64 {
	if s.OriginalBytes <= 0 {
		return 0
	}
	return 1 - float64(s.ProcessedBytes)/float64(s.OriginalBytes)
}
