package indicator

import (
	"time"

	"cryptoagent/internal/model"
	"cryptoagent/internal/ringbuf"
)

// View is a read-only accessor over one instrument's price series.
type View interface {
	// Len returns the number of retained samples.
	Len() int
	// At returns the i-th sample counting from the oldest (0).
	At(i int) (model.Sample, bool)
	// Last returns the n-th sample counting back from the newest (0).
	Last(n int) (model.Sample, bool)
	// LastTime returns the newest sample time, or the zero time when empty.
	LastTime() time.Time
}

// Series is a bounded, append-only sequence of samples with strictly
// increasing timestamps. The oldest sample is evicted once the ring is full.
type Series struct {
	ring *ringbuf.Ring[model.Sample]
}

// NewSeries creates a series retaining at most capacity samples.
func NewSeries(capacity int) *Series {
	return &Series{ring: ringbuf.New[model.Sample](capacity)}
}

func (s *Series) Len() int { return s.ring.Len() }

func (s *Series) At(i int) (model.Sample, bool) { return s.ring.At(i) }

func (s *Series) Last(n int) (model.Sample, bool) { return s.ring.Newest(n) }

func (s *Series) LastTime() time.Time {
	last, ok := s.ring.Newest(0)
	if !ok {
		return time.Time{}
	}
	return last.Time
}

// Samples copies the retained samples, oldest first.
func (s *Series) Samples() []model.Sample { return s.ring.Slice() }

// repeats reports whether price equals each of the last n recorded prices.
func (s *Series) repeats(price float64, n int) bool {
	if n < 1 || s.ring.Len() < n {
		return false
	}
	for i := 0; i < n; i++ {
		prev, _ := s.ring.Newest(i)
		if prev.Price != price {
			return false
		}
	}
	return true
}

func (s *Series) append(sample model.Sample) {
	s.ring.Push(sample)
}

// emptyView is returned for instruments with no series yet.
type emptyView struct{}

func (emptyView) Len() int { return 0 }
func (emptyView) At(int) (model.Sample, bool) { return model.Sample{}, false }
func (emptyView) Last(int) (model.Sample, bool) { return model.Sample{}, false }
func (emptyView) LastTime() time.Time { return time.Time{} }
