package gateway

import (
	"cryptoagent/internal/ringbuf"
)

type backlogEntry struct {
	seq  int64
	data []byte
}

// backlog keeps the most recent envelopes of one channel so a reconnecting
// client can catch up on what it missed. Guarded by Hub.mu.
type backlog struct {
	ring *ringbuf.Ring[backlogEntry]
}

func newBacklog(capacity int) *backlog {
	return &backlog{ring: ringbuf.New[backlogEntry](capacity)}
}

func (b *backlog) add(seq int64, data []byte) {
	b.ring.Push(backlogEntry{seq: seq, data: data})
}

// after returns the envelopes with a channel seq greater than afterSeq,
// oldest first. complete is false when older envelopes the caller never saw
// were already evicted.
func (b *backlog) after(afterSeq int64) (msgs [][]byte, complete bool) {
	complete = true
	if oldest, ok := b.ring.At(0); ok && oldest.seq > afterSeq+1 {
		complete = false
	}
	for i := 0; i < b.ring.Len(); i++ {
		e, _ := b.ring.At(i)
		if e.seq > afterSeq {
			msgs = append(msgs, e.data)
		}
	}
	return msgs, complete
}

func (b *backlog) len() int { return b.ring.Len() }
