package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

type memLog struct {
	mu     sync.Mutex
	events map[string][]domain.ProgressEvent
}

func newMemLog() *memLog {
	return &memLog{events: make(map[string][]domain.ProgressEvent)}
}

func (l *memLog) AppendProgress(_ context.Context, ch string, ev domain.ProgressEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events[ch] = append(l.events[ch], ev)
	return nil
}

func (l *memLog) ReadProgress(_ context.Context, ch string) ([]domain.ProgressEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ProgressEvent(nil), l.events[ch]...), nil
}

func (l *memLog) ResetProgress(_ context.Context, ch string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, ch)
	return nil
}

func drain(t *testing.T, sub *Subscription) []domain.ProgressEvent {
	t.Helper()
	out := append([]domain.ProgressEvent(nil), sub.Replay...)
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("subscription did not close")
		}
	}
}

func TestBrokerReplaysThenFollowsLive(t *testing.T) {
	for name, log := range map[string]Log{"redis-log": newMemLog(), "in-memory": nil} {
		t.Run(name, func(t *testing.T) {
			b := NewBroker(log, zap.NewNop())
			em := b.Open(ScrapeChannel("imp"))

			em.Push(domain.NewProgressEvent(1, 3, "a"))
			sub, err := b.Subscribe(context.Background(), ScrapeChannel("imp"))
			require.NoError(t, err)

			em.Push(domain.NewProgressEvent(2, 3, "b"))
			em.Push(domain.NewProgressEvent(3, 3, "c"))
			em.Push(domain.NewCompleteEvent(3))

			events := drain(t, sub)
			require.Len(t, events, 4)
			for i := 0; i < 3; i++ {
				assert.Equal(t, i+1, events[i].Processed)
			}
			assert.Equal(t, domain.ProgressEventComplete, events[3].Type)
		})
	}
}

func TestLateSubscriberGetsFinishedStream(t *testing.T) {
	b := NewBroker(newMemLog(), zap.NewNop())
	em := b.Open(RunChannel("r1"))
	em.Push(domain.NewProgressEvent(1, 1, "a"))
	em.Push(domain.NewErrorEvent("boom"))

	sub, err := b.Subscribe(context.Background(), RunChannel("r1"))
	require.NoError(t, err)
	assert.True(t, sub.Done())

	events := drain(t, sub)
	require.Len(t, events, 2)
	assert.Equal(t, "boom", events[1].Error)
}

func TestReopenResetsChannel(t *testing.T) {
	b := NewBroker(newMemLog(), zap.NewNop())
	first := b.Open(ScrapeChannel("imp"))
	first.Push(domain.NewCompleteEvent(0))

	second := b.Open(ScrapeChannel("imp"))
	second.Push(domain.NewProgressEvent(1, 2, "x"))

	sub, err := b.Subscribe(context.Background(), ScrapeChannel("imp"))
	require.NoError(t, err)
	require.Len(t, sub.Replay, 1)
	assert.False(t, sub.Done())
	sub.Cancel()
}

func TestPushAfterCloseIsIgnored(t *testing.T) {
	b := NewBroker(nil, zap.NewNop())
	em := b.Open("x")
	em.Close()
	em.Push(domain.NewProgressEvent(1, 1, "late"))

	sub, err := b.Subscribe(context.Background(), "x")
	require.NoError(t, err)
	assert.Empty(t, drain(t, sub))
}

func TestSubscribeUnknownChannelIsNotFound(t *testing.T) {
	for name, log := range map[string]Log{"redis-log": newMemLog(), "in-memory": nil} {
		t.Run(name, func(t *testing.T) {
			b := NewBroker(log, zap.NewNop())

			_, err := b.Subscribe(context.Background(), "scrape:nope")
			assert.True(t, apperrors.IsNotFound(err))
			assert.Empty(t, b.topics)
		})
	}
}

func TestClosedTopicIsReleasedAndReplaysFromLog(t *testing.T) {
	b := NewBroker(newMemLog(), zap.NewNop())
	em := b.Open(RunChannel("r2"))
	em.Push(domain.NewProgressEvent(1, 1, "a"))
	em.Push(domain.NewCompleteEvent(1))
	em.Close()

	assert.Empty(t, b.topics)

	sub, err := b.Subscribe(context.Background(), RunChannel("r2"))
	require.NoError(t, err)
	assert.True(t, sub.Done())
	assert.Len(t, drain(t, sub), 2)
	sub.Cancel()
	assert.Empty(t, b.topics)
}

func TestFinishedTopicsAreBoundedWithoutLog(t *testing.T) {
	b := NewBroker(nil, zap.NewNop())
	for i := 0; i < finishedTopics+10; i++ {
		em := b.Open(RunChannel(strings.Repeat("r", i+1)))
		em.Push(domain.NewCompleteEvent(0))
		em.Close()
	}

	assert.Len(t, b.topics, finishedTopics)
	_, err := b.Subscribe(context.Background(), RunChannel("r"))
	assert.True(t, apperrors.IsNotFound(err))

	sub, err := b.Subscribe(context.Background(), RunChannel(strings.Repeat("r", finishedTopics+10)))
	require.NoError(t, err)
	assert.Len(t, drain(t, sub), 1)
}

func TestSSEWriterStream(t *testing.T) {
	b := NewBroker(nil, zap.NewNop())
	em := b.Open("s")
	em.Push(domain.NewProgressEvent(1, 1, "alice"))
	em.Push(domain.NewCompleteEvent(1))

	sub, err := b.Subscribe(context.Background(), "s")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	sw, err := NewSSEWriter(rec, 0)
	require.NoError(t, err)
	require.NoError(t, sw.Stream(make(chan struct{}), sub))

	body := rec.Body.String()
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, "event: progress\ndata: {\"type\":\"progress\",\"processed\":1,\"total\":1,\"username\":\"alice\"}\n\n")
	assert.True(t, strings.HasSuffix(body, "event: complete\ndata: {\"type\":\"complete\",\"processed\":1,\"total\":1}\n\n"))
}

func TestWebSocketHandlerStreams(t *testing.T) {
	b := NewBroker(newMemLog(), zap.NewNop())
	em := b.Open("ws")
	em.Push(domain.NewProgressEvent(1, 2, "a"))

	h := NewWebSocketHandler(b, nil, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, "ws")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var first domain.ProgressEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "a", first.Username)

	em.Push(domain.NewCompleteEvent(2))
	var last domain.ProgressEvent
	require.NoError(t, conn.ReadJSON(&last))
	assert.Equal(t, domain.ProgressEventComplete, last.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWebSocketHandlerUnknownChannel(t *testing.T) {
	h := NewWebSocketHandler(NewBroker(newMemLog(), zap.NewNop()), nil, zap.NewNop())
	rec := httptest.NewRecorder()
	h.Serve(rec, httptest.NewRequest(http.MethodGet, "/api/progress/run:x/ws", nil), "run:x")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
