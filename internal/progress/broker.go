package progress

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	apperrors "github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// Log persists a channel's events so late subscribers can replay them.
type Log interface {
	AppendProgress(ctx context.Context, channel string, ev domain.ProgressEvent) error
	ReadProgress(ctx context.Context, channel string) ([]domain.ProgressEvent, error)
	ResetProgress(ctx context.Context, channel string) error
}

const subscriberBuffer = 256

// finishedTopics bounds how many closed streams stay replayable without a Log.
const finishedTopics = 64

// Subscription delivers Replay first, then live events on C. C is closed
// after a terminal event, when the channel closes, or when the subscriber
// falls too far behind.
type Subscription struct {
	Replay []domain.ProgressEvent
	C      <-chan domain.ProgressEvent

	ch     chan domain.ProgressEvent
	topic  *topic
	broker *Broker
	once   sync.Once
}

// Done reports whether the replay already ended the stream.
func (s *Subscription) Done() bool {
	n := len(s.Replay)
	return n > 0 && s.Replay[n-1].Type.IsTerminal()
}

func (s *Subscription) Cancel() {
	s.broker.unsubscribe(s)
}

// Lock order is Broker.mu before topic.mu.
type topic struct {
	name   string
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	// history is used when no Log is configured
	history []domain.ProgressEvent
}

// Broker fans progress events out to live subscribers and appends them to
// the optional Log. Each channel is an independent ordered stream. Only
// Open registers a channel; closed channels are dropped from memory and
// replayed from the Log afterwards.
type Broker struct {
	mu       sync.Mutex
	topics   map[string]*topic
	finished []*topic
	log      Log
	logger   *zap.Logger
}

func NewBroker(log Log, logger *zap.Logger) *Broker {
	return &Broker{
		topics: make(map[string]*topic),
		log:    log,
		logger: logger,
	}
}

// Open starts a new stream on channel, discarding what a previous job on the
// same channel emitted. Events pushed before any subscriber connects remain
// available through replay.
func (b *Broker) Open(channel string) Emitter {
	b.mu.Lock()
	t, ok := b.topics[channel]
	if ok {
		t.mu.Lock()
		if t.closed {
			ok = false
		} else {
			t.history = nil
		}
		t.mu.Unlock()
	}
	if !ok {
		t = &topic{name: channel, subs: make(map[*Subscription]struct{})}
		b.topics[channel] = t
	}
	b.mu.Unlock()

	if b.log != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := b.log.ResetProgress(ctx, channel); err != nil {
			b.logger.Warn("Failed to reset progress log", zap.String("channel", channel), zap.Error(err))
		}
		cancel()
	}
	return &channelEmitter{broker: b, topic: t}
}

func (b *Broker) publish(t *topic, ev domain.ProgressEvent) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if b.log != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := b.log.AppendProgress(ctx, t.name, ev); err != nil {
			b.logger.Warn("Failed to append progress log",
				zap.String("channel", t.name),
				zap.Error(err),
			)
		}
		cancel()
	} else {
		t.history = append(t.history, ev)
	}

	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("Dropping slow progress subscriber", zap.String("channel", t.name))
			b.dropLocked(t, sub)
		}
	}

	terminal := ev.Type.IsTerminal()
	if terminal {
		b.closeLocked(t)
	}
	t.mu.Unlock()

	if terminal {
		b.retire(t)
	}
}

func (b *Broker) close(t *topic) {
	t.mu.Lock()
	b.closeLocked(t)
	t.mu.Unlock()
	b.retire(t)
}

// retire removes a closed topic from the registry. Without a Log the last
// finishedTopics closed topics stay registered so their history can replay.
func (b *Broker) retire(t *topic) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.log != nil {
		if b.topics[t.name] == t {
			delete(b.topics, t.name)
		}
		return
	}

	for _, f := range b.finished {
		if f == t {
			return
		}
	}
	b.finished = append(b.finished, t)
	if len(b.finished) > finishedTopics {
		oldest := b.finished[0]
		b.finished = b.finished[1:]
		if b.topics[oldest.name] == oldest {
			delete(b.topics, oldest.name)
		}
	}
}

// must hold t.mu
func (b *Broker) closeLocked(t *topic) {
	if t.closed {
		return
	}
	t.closed = true
	for sub := range t.subs {
		b.dropLocked(t, sub)
	}
}

// must hold t.mu
func (b *Broker) dropLocked(t *topic, sub *Subscription) {
	if _, ok := t.subs[sub]; !ok {
		return
	}
	delete(t.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
	metrics.Metrics.ProgressSubscribers.Dec()
}

// Subscribe replays what channel has emitted so far and follows it live.
// A channel that was never opened, or whose events have expired, is a
// NotFoundError.
func (b *Broker) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	b.mu.Lock()
	t, ok := b.topics[channel]
	b.mu.Unlock()
	if !ok {
		return b.subscribeFinished(ctx, channel)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var replay []domain.ProgressEvent
	if b.log != nil {
		events, err := b.log.ReadProgress(ctx, channel)
		if err != nil {
			return nil, err
		}
		replay = events
	} else {
		replay = append(replay, t.history...)
	}

	ch := make(chan domain.ProgressEvent, subscriberBuffer)
	sub := &Subscription{Replay: replay, C: ch, ch: ch, topic: t, broker: b}

	if t.closed || sub.Done() {
		sub.once.Do(func() { close(ch) })
		return sub, nil
	}

	t.subs[sub] = struct{}{}
	metrics.Metrics.ProgressSubscribers.Inc()
	return sub, nil
}

// subscribeFinished serves a channel that is no longer registered from the Log.
func (b *Broker) subscribeFinished(ctx context.Context, channel string) (*Subscription, error) {
	if b.log == nil {
		return nil, apperrors.NewNotFoundError("progress channel", channel)
	}
	events, err := b.log.ReadProgress(ctx, channel)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, apperrors.NewNotFoundError("progress channel", channel)
	}

	t := &topic{name: channel, subs: make(map[*Subscription]struct{}), closed: true}
	ch := make(chan domain.ProgressEvent)
	close(ch)
	return &Subscription{Replay: events, C: ch, ch: ch, topic: t, broker: b}, nil
}

func (b *Broker) unsubscribe(sub *Subscription) {
	sub.topic.mu.Lock()
	defer sub.topic.mu.Unlock()
	b.dropLocked(sub.topic, sub)
}

type channelEmitter struct {
	broker *Broker
	topic  *topic
}

func (e *channelEmitter) Push(ev domain.ProgressEvent) {
	e.broker.publish(e.topic, ev)
}

func (e *channelEmitter) Close() {
	e.broker.close(e.topic)
}
