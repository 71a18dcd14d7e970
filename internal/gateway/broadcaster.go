package gateway

import (
	"strconv"
	"time"
)

// Broadcast sends data on a channel to all subscribed clients. The envelope
// carries a global seq and a per-channel seq for client-side gap detection.
// Clients whose queue is full miss the envelope and must catch up through
// Missed.
func (h *Hub) Broadcast(channel string, data []byte) {
	start := h.now()
	now := start.UTC()

	h.mu.Lock()
	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++

	buf := envelope(channel, data, now, h.seq, channelSeq, false)
	b, ok := h.backlogs[channel]
	if !ok {
		b = newBacklog(h.backlogSize)
		h.backlogs[channel] = b
	}
	b.add(channelSeq, buf)

	drops := 0
	for client := range h.clients {
		if !client.wants(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
			drops++
		}
	}
	h.dropped[channel] += uint64(drops)
	h.fanout.Push(h.elapsed(start))
	h.mu.Unlock()

	if drops > 0 {
		h.logger.Warn("ws clients lagging", "channel", channel, "dropped", drops)
		if h.OnDrop != nil {
			h.OnDrop(channel, drops)
		}
	}
}

// envelope builds {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
// without a reflection round trip. data must already be valid JSON.
func envelope(channel string, data []byte, ts time.Time, seq, channelSeq int64, initial bool) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	if initial {
		buf = append(buf, `,"initial":true`...)
	}
	buf = append(buf, '}')
	return buf
}
