package gateway

import (
	"math"
	"sort"
	"time"
)

// ChannelStats describes one channel of the status stream.
type ChannelStats struct {
	Seq     int64  `json:"seq"`
	Dropped uint64 `json:"dropped"`
	Backlog int    `json:"backlog"`
}

// Stats is a point-in-time view of the hub.
type Stats struct {
	Clients     int                     `json:"clients"`
	Channels    map[string]ChannelStats `json:"channels"`
	FanoutP50Ms float64                 `json:"fanout_p50_ms"`
	FanoutP99Ms float64                 `json:"fanout_p99_ms"`
}

// Stats reports per-channel sequence and drop counts plus how long recent
// broadcasts took to enqueue to every client.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	st := Stats{
		Clients:  len(h.clients),
		Channels: make(map[string]ChannelStats, len(h.channelSeqs)),
	}
	for ch, seq := range h.channelSeqs {
		cs := ChannelStats{Seq: seq, Dropped: h.dropped[ch]}
		if b := h.backlogs[ch]; b != nil {
			cs.Backlog = b.len()
		}
		st.Channels[ch] = cs
	}
	durs := h.fanout.Slice()
	h.mu.RUnlock()

	if len(durs) == 0 {
		return st
	}
	ms := make([]float64, len(durs))
	for i, d := range durs {
		ms[i] = float64(d.Microseconds()) / 1000.0
	}
	sort.Float64s(ms)
	st.FanoutP50Ms = percentile(ms, 0.50)
	st.FanoutP99Ms = percentile(ms, 0.99)
	return st
}

// percentile interpolates the p-th percentile (0..1) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}

func (h *Hub) elapsed(start time.Time) time.Duration {
	d := h.now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
