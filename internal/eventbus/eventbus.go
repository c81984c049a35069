// Package eventbus implements a broadcast bus where every subscriber owns a
// bounded output channel backed by an unbounded internal queue, so a slow
// subscriber never blocks the publisher. It generalizes a callback-setter
// idiom (SetOnTrade / SetOnEquityUpdate style hooks) into a proper pub/sub
// abstraction, using golang.org/x/sync/errgroup for bounded concurrent
// delivery across subscribers.
package eventbus

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lumenquant/coreengine/internal/logger"
)

// Kind identifies an event channel.
type Kind string

const (
	KindSignal         Kind = "signal"
	KindSignalBacktest Kind = "signal_backtest"
	KindSignalLive     Kind = "signal_live"
	KindRiskRejected   Kind = "risk_rejected"
	KindPartialProfit  Kind = "partial_profit"
	KindPartialLoss    Kind = "partial_loss"
	KindBreakeven      Kind = "breakeven"
	KindScheduled      Kind = "scheduled"
	KindPerformance    Kind = "performance"
	KindWalker         Kind = "walker"
	KindWalkerProgress Kind = "walker_progress"
	KindError          Kind = "error"
	KindDoneBacktest   Kind = "done_backtest"
	KindDoneLive       Kind = "done_live"
)

// Event is the envelope broadcast on every channel.
type Event struct {
	Kind         Kind
	StrategyName string
	ExchangeName string
	Symbol       string
	SignalID     string
	Payload      any
}

// subscriber owns an unbounded, mutex-guarded queue drained into Out by a
// dedicated goroutine, so Publish never blocks regardless of consumer speed.
type subscriber struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	out     chan Event
	closed  bool
}

func newSubscriber(bufferHint int) *subscriber {
	s := &subscriber{
		queue: make([]Event, 0, bufferHint),
		out:   make(chan Event, bufferHint),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.drain()
	return s
}

func (s *subscriber) enqueue(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.out <- next
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Signal()
}

// Bus fans Event values out to every subscriber, in publish order per
// subscriber, without ever blocking on a slow consumer.
type Bus struct {
	mu           sync.RWMutex
	subscribers  map[int]*subscriber
	nextID       int
	maxFanout    int
	log          *logger.Logger
}

// New creates an empty Bus. maxFanout bounds how many subscriber deliveries
// run concurrently per Publish call; 0 means unbounded.
func New(maxFanout int) *Bus {
	return &Bus{
		subscribers: make(map[int]*subscriber),
		maxFanout:   maxFanout,
		log:         logger.Component("eventbus"),
	}
}

// Subscription is returned by Subscribe; call Unsubscribe when done.
type Subscription struct {
	bus *Bus
	id  int
	Ch  <-chan Event
}

// Subscribe registers a new subscriber with the given channel buffer hint.
func (b *Bus) Subscribe(bufferHint int) *Subscription {
	if bufferHint <= 0 {
		bufferHint = 16
	}
	sub := newSubscriber(bufferHint)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.mu.Unlock()

	return &Subscription{bus: b, id: id, Ch: sub.out}
}

// Unsubscribe removes a subscription and closes its channel once drained.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	sub, ok := s.bus.subscribers[s.id]
	delete(s.bus.subscribers, s.id)
	s.bus.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish broadcasts e to every current subscriber. It never blocks on a
// slow consumer: delivery into each subscriber's queue is O(1), and the
// fanout across subscribers is bounded by maxFanout via errgroup.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	g, _ := errgroup.WithContext(context.Background())
	if b.maxFanout > 0 {
		g.SetLimit(b.maxFanout)
	}
	for _, s := range subs {
		s := s
		g.Go(func() error {
			s.enqueue(e)
			return nil
		})
	}
	_ = g.Wait()
}

// Close tears down all subscribers, closing their channels once drained.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subscribers
	b.subscribers = make(map[int]*subscriber)
	b.mu.Unlock()
	for _, s := range subs {
		s.close()
	}
}
