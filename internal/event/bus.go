package event

import (
	"context"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
)

// Priority orders handlers. Lower values run first.
type Priority int

const (
	// PriorityCritical is for handlers that keep other state consistent with
	// the tree, such as reference invalidation.
	PriorityCritical Priority = 0
	// PriorityNormal is the default.
	PriorityNormal Priority = 200
	// PriorityLow is for logging and metrics handlers.
	PriorityLow Priority = 300
)

// Handler processes events.
type Handler interface {
	Handle(ctx context.Context, ev any) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev any) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, ev any) error {
	return f(ctx, ev)
}

// Subscription is a registered handler.
type Subscription struct {
	id       uint64
	pattern  Topic
	handler  Handler
	priority Priority
	filter   func(any) bool
	once     bool
	active   atomic.Bool
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() Topic { return s.pattern }

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool { return s.active.Load() }

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*Subscription)

// WithPriority sets the handler priority.
func WithPriority(p Priority) SubscriptionOption {
	return func(s *Subscription) { s.priority = p }
}

// WithFilter delivers only events for which fn returns true.
func WithFilter(fn func(ev any) bool) SubscriptionOption {
	return func(s *Subscription) { s.filter = fn }
}

// Once removes the subscription after its first successful delivery.
func Once() SubscriptionOption {
	return func(s *Subscription) { s.once = true }
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	HandlerErrors uint64
	HandlerPanics uint64
	Subscribers   int
}

// Option configures a Bus.
type Option func(*Bus)

// WithErrorHandler receives every handler error, including recovered panics
// as *PanicError.
func WithErrorHandler(fn func(ev any, err error)) Option {
	return func(b *Bus) { b.onError = fn }
}

// Bus is a synchronous publish/subscribe hub. It is safe for concurrent use.
type Bus struct {
	mu      sync.RWMutex
	subs    []*Subscription
	nextID  uint64
	onError func(ev any, err error)

	published atomic.Uint64
	delivered atomic.Uint64
	errors    atomic.Uint64
	panics    atomic.Uint64
}

// NewBus creates a bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topics matching pattern.
func (b *Bus) Subscribe(pattern Topic, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if pattern == "" {
		return nil, ErrInvalidTopic
	}
	s := &Subscription{pattern: pattern, handler: handler, priority: PriorityNormal}
	for _, opt := range opts {
		opt(s)
	}
	s.active.Store(true)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	s.id = b.nextID

	// Copy on write so Publish can iterate a stable slice without the lock.
	subs := make([]*Subscription, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	subs = append(subs, s)
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].id < subs[j].id
	})
	b.subs = subs
	return s, nil
}

// SubscribeFunc registers a function handler.
func (b *Bus) SubscribeFunc(pattern Topic, fn HandlerFunc, opts ...SubscriptionOption) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(pattern, fn, opts...)
}

// Unsubscribe removes s.
func (b *Bus) Unsubscribe(s *Subscription) error {
	if s == nil || !s.active.Swap(false) {
		return ErrSubscriptionNotFound
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, x := range b.subs {
		if x != s {
			subs = append(subs, x)
		}
	}
	b.subs = subs
	return nil
}

// Publish delivers ev to every matching handler before returning. Handler
// failures are counted and passed to the error handler but not returned.
func (b *Bus) Publish(ctx context.Context, ev any) error {
	tp, ok := ev.(TopicProvider)
	if !ok || tp.EventTopic() == "" {
		return ErrInvalidEvent
	}
	topic := tp.EventTopic()
	b.published.Add(1)

	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.active.Load() || !topic.Matches(s.pattern) {
			continue
		}
		if s.filter != nil && !s.filter(ev) {
			continue
		}
		if err := b.dispatch(ctx, topic, s, ev); err != nil {
			if b.onError != nil {
				b.onError(ev, err)
			}
			continue
		}
		b.delivered.Add(1)
		if s.once {
			_ = b.Unsubscribe(s)
		}
	}
	return nil
}

func (b *Bus) dispatch(ctx context.Context, topic Topic, s *Subscription, ev any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			err = &PanicError{Topic: topic, Value: r, Stack: string(debug.Stack())}
		}
	}()
	if err := s.handler.Handle(ctx, ev); err != nil {
		b.errors.Add(1)
		return err
	}
	return nil
}

// Stats returns the current counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerErrors: b.errors.Load(),
		HandlerPanics: b.panics.Load(),
		Subscribers:   n,
	}
}
