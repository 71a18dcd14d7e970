package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
	block  chan struct{}
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

func TestTelegramNotifier(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{
		Level:      AlertWarning,
		Title:      "Sell XETHZUSD (stop_loss)",
		Message:    "10 @ 94.5, profit -55.00",
		Instrument: "XETHZUSD",
		CycleID:    "c-000007",
	}))

	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "MarkdownV2", got["parse_mode"])
	assert.Equal(t,
		"⚠️ *Sell XETHZUSD \\(stop\\_loss\\)*\n\\#XETHZUSD\n\n10 @ 94\\.5, profit \\-55\\.00\n\n_c\\-000007_",
		got["text"])
}

func TestTelegramText_NoInstrument(t *testing.T) {
	text := telegramText(Alert{Level: AlertCritical, Title: "State save failed", Message: "disk full"})
	assert.Equal(t, "🚨 *State save failed*\n\ndisk full", text)
}

func TestTelegramNotifier_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bad", "42")
	n.baseURL = srv.URL
	err := n.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: unexpected status 401")
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertInfo, Title: "Buy XETHZUSD", Message: "10 @ 100", Instrument: "XETHZUSD"}))

	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "Buy XETHZUSD", got["title"])
	assert.Equal(t, "XETHZUSD", got["instrument"])
	assert.NotContains(t, got, "cycle_id")
	assert.Equal(t, "2024-01-01T00:00:00Z", got["ts"])
}

func TestWebhookNotifier_KeepsAlertTime(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	at := time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	require.NoError(t, NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x", Time: at}))
	assert.Equal(t, "2024-05-01T12:00:00Z", got["ts"])
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, escapeMarkdown("a_b.c!"))
	assert.Equal(t, `back\\slash`, escapeMarkdown(`back\slash`))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("boom")}
	err := Multi{ok, bad}.Send(context.Background(), Alert{Title: "x"})

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "boom"))
	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
}

func TestAsync_DeliversAndDrains(t *testing.T) {
	rec := &recorder{}
	a := NewAsync(rec, 8, time.Second, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, a.Send(context.Background(), Alert{Title: "x"}))
	}
	a.Close()
	assert.Equal(t, 5, rec.count())
}

func TestAsync_DropsWhenFull(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	a := NewAsync(rec, 1, time.Second, nil)
	var dropped int
	a.OnDrop = func() { dropped++ }

	// the first alert may be taken by the worker (blocked), the second fills
	// the queue, and at least one of the rest must be dropped
	for i := 0; i < 4; i++ {
		require.NoError(t, a.Send(context.Background(), Alert{Title: "x"}))
	}
	assert.GreaterOrEqual(t, dropped, 1)

	close(rec.block)
	a.Close()
	assert.Equal(t, 4-dropped, rec.count())
}
