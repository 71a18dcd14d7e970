package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelopeMsg struct {
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	Seq        int64           `json:"seq"`
	ChannelSeq int64           `json:"channel_seq"`
	Initial    bool            `json:"initial"`
}

func startServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	RegisterRoutes(mux, hub)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads one frame and splits coalesced messages.
func readEnvelopes(t *testing.T, conn *websocket.Conn) []envelopeMsg {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var out []envelopeMsg
	for _, line := range strings.Split(string(raw), "\n") {
		var e envelopeMsg
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		out = append(out, e)
	}
	return out
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastsToSubscribedClients(t *testing.T) {
	hub := NewHub(10, nil)
	srv := startServer(t, hub)

	all := dial(t, srv, "")
	ordersOnly := dial(t, srv, "?channels=orders")
	waitClients(t, hub, 2)

	require.NoError(t, hub.Publish(ChannelCycle, map[string]any{"locked": false}))
	require.NoError(t, hub.Publish(ChannelOrders, map[string]any{"side": "buy"}))

	var got []envelopeMsg
	for len(got) < 2 {
		got = append(got, readEnvelopes(t, all)...)
	}
	assert.Equal(t, ChannelCycle, got[0].Channel)
	assert.Equal(t, ChannelOrders, got[1].Channel)
	assert.Equal(t, int64(2), got[1].Seq)
	assert.Equal(t, int64(1), got[1].ChannelSeq)

	filtered := readEnvelopes(t, ordersOnly)
	require.Len(t, filtered, 1)
	assert.Equal(t, ChannelOrders, filtered[0].Channel)
	assert.JSONEq(t, `{"side":"buy"}`, string(filtered[0].Data))
}

func TestHub_InitialStateOnConnect(t *testing.T) {
	hub := NewHub(10, nil)
	srv := startServer(t, hub)

	require.NoError(t, hub.Publish(ChannelLock, map[string]bool{"locked": true}))

	conn := dial(t, srv, "")
	got := readEnvelopes(t, conn)
	require.Len(t, got, 1)
	assert.True(t, got[0].Initial)
	assert.Equal(t, ChannelLock, got[0].Channel)
}

func TestHub_SubscribeMessage(t *testing.T) {
	hub := NewHub(10, nil)
	srv := startServer(t, hub)

	conn := dial(t, srv, "?channels=lock")
	waitClients(t, hub, 1)
	require.NoError(t, conn.WriteJSON(controlMsg{Type: "SUBSCRIBE", Channels: []string{ChannelOrders}}))

	// the subscription is applied asynchronously by the read pump
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		for c := range hub.clients {
			if c.wants(ChannelOrders) {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ChannelCycle, 1))
	require.NoError(t, hub.Publish(ChannelOrders, 2))

	got := readEnvelopes(t, conn)
	require.NotEmpty(t, got)
	assert.Equal(t, ChannelOrders, got[0].Channel)
}

func TestHub_ClientCountCallback(t *testing.T) {
	hub := NewHub(10, nil)
	counts := make(chan int, 4)
	hub.OnClientCount = func(n int) { counts <- n }
	srv := startServer(t, hub)

	conn := dial(t, srv, "")
	assert.Equal(t, 1, <-counts)
	conn.Close()
	assert.Equal(t, 0, <-counts)
}

func TestRoutes_MissedAndLatest(t *testing.T) {
	hub := NewHub(3, nil)
	srv := startServer(t, hub)
	for i := 1; i <= 5; i++ {
		require.NoError(t, hub.Publish(ChannelCycle, map[string]int{"n": i}))
	}

	type missedBody struct {
		ChannelSeq int64         `json:"channel_seq"`
		Complete   bool          `json:"complete"`
		Messages   []envelopeMsg `json:"messages"`
	}
	get := func(query string) missedBody {
		resp, err := http.Get(srv.URL + "/api/missed?" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body missedBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body
	}

	all := get("channel=cycle&after=0")
	assert.Equal(t, int64(5), all.ChannelSeq)
	assert.False(t, all.Complete, "seqs 1 and 2 were evicted")
	require.Len(t, all.Messages, 3)
	assert.Equal(t, int64(3), all.Messages[0].ChannelSeq)

	tail := get("channel=cycle&after=3")
	assert.True(t, tail.Complete)
	require.Len(t, tail.Messages, 2)
	assert.JSONEq(t, `{"n":5}`, string(tail.Messages[1].Data))

	unknown := get("channel=orders&after=0")
	assert.True(t, unknown.Complete)
	assert.Empty(t, unknown.Messages)

	bad, err := http.Get(srv.URL + "/api/missed?channel=cycle")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	latest, err := http.Get(srv.URL + "/api/latest")
	require.NoError(t, err)
	defer latest.Body.Close()
	var body map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(latest.Body).Decode(&body))
	assert.JSONEq(t, `{"n":5}`, string(body[ChannelCycle]))
}

func TestEnvelope_QuotesChannel(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := envelope(`we"ird`, []byte(`{}`), ts, 7, 3, false)

	var e envelopeMsg
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, `we"ird`, e.Channel)
	assert.Equal(t, int64(7), e.Seq)
	assert.Equal(t, int64(3), e.ChannelSeq)
	assert.False(t, e.Initial)
}

func TestHub_StatsCountsDrops(t *testing.T) {
	hub := NewHub(10, nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hub.now = func() time.Time { return base }

	var reported int
	hub.OnDrop = func(channel string, n int) {
		assert.Equal(t, ChannelOrders, channel)
		reported += n
	}

	// a client that never drains its one-slot queue
	slow := &Client{hub: hub, send: make(chan []byte, 1), subs: map[string]bool{}}
	hub.mu.Lock()
	hub.clients[slow] = true
	hub.mu.Unlock()
	t.Cleanup(hub.Close)

	hub.Broadcast(ChannelOrders, []byte(`{"n":1}`))
	hub.Broadcast(ChannelOrders, []byte(`{"n":2}`))
	hub.Broadcast(ChannelOrders, []byte(`{"n":3}`))

	st := hub.Stats()
	assert.Equal(t, 1, st.Clients)
	assert.Equal(t, ChannelStats{Seq: 3, Dropped: 2, Backlog: 3}, st.Channels[ChannelOrders])
	assert.Equal(t, 2, reported)
	assert.Zero(t, st.FanoutP99Ms)

	// the dropped envelopes are still recoverable
	msgs, complete := hub.Missed(ChannelOrders, 1)
	assert.True(t, complete)
	assert.Len(t, msgs, 2)
}

func TestBacklog_After(t *testing.T) {
	b := newBacklog(4)
	msgs, complete := b.after(0)
	assert.Empty(t, msgs)
	assert.True(t, complete)

	for seq := int64(1); seq <= 6; seq++ {
		b.add(seq, []byte{byte('0' + seq)})
	}
	assert.Equal(t, 4, b.len())

	msgs, complete = b.after(2)
	assert.True(t, complete, "seq 3 is the oldest kept")
	assert.Equal(t, [][]byte{[]byte("3"), []byte("4"), []byte("5"), []byte("6")}, msgs)

	_, complete = b.after(1)
	assert.False(t, complete)

	msgs, complete = b.after(6)
	assert.Empty(t, msgs)
	assert.True(t, complete)
}

func TestPercentile(t *testing.T) {
	sorted := make([]float64, 100)
	for i := range sorted {
		sorted[i] = float64(i + 1)
	}
	assert.InDelta(t, 50.5, percentile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 99.01, percentile(sorted, 0.99), 1e-9)
	assert.Equal(t, 7.0, percentile([]float64{7}, 0.99))
}
