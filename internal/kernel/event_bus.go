package kernel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"nanobot/pkg/bot"
)

var errBusClosed = errors.New("event bus closed")

// EventBus fans events out to bounded per-subscription queues.
//
// Subscriptions receive events in the order they were published; fan-out
// visits subscriptions in the order they were registered.
type EventBus struct {
	defaults bot.SubscriptionSpec
	report   func(context.Context, string, error)

	mu     sync.RWMutex
	nextID int64
	closed bool
	subs   []*subscription
}

// NewEventBus creates a bus whose subscriptions inherit unset fields from defaults.
func NewEventBus(defaults bot.SubscriptionSpec, report func(context.Context, string, error)) *EventBus {
	if defaults.Buffer <= 0 {
		defaults.Buffer = defaultSubscriptionBuffer
	}
	if defaults.Workers <= 0 {
		defaults.Workers = defaultSubscriptionWorker
	}
	if defaults.Backpressure == "" {
		defaults.Backpressure = bot.BackpressureDropNewest
	}
	if report == nil {
		report = func(context.Context, string, error) {}
	}

	return &EventBus{defaults: defaults, report: report}
}

// Publish validates event and queues it for every interested subscription.
//
// Drops and closed subscriptions are reported asynchronously; only blocking
// deliveries that fail on ctx make Publish fail.
func (b *EventBus) Publish(ctx context.Context, event *bot.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("publish event %s: %w", event.Kind, errBusClosed)
	}
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	var failures []error
	for _, sub := range subs {
		if !sub.interest.Matches(event) {
			continue
		}
		err := sub.deliver(ctx, event)
		switch {
		case err == nil:
		case errors.Is(err, bot.ErrEventDropped), errors.Is(err, bot.ErrSubscriptionClosed):
			b.report(ctx, sub.spec.Name, err)
		default:
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("publish event %s: %w", event.Kind, errors.Join(failures...))
	}

	return nil
}

// Subscribe starts a subscription whose workers run until it is closed.
func (b *EventBus) Subscribe(
	ctx context.Context,
	interest bot.InterestSet,
	spec bot.SubscriptionSpec,
	handler bot.EventHandler,
) (bot.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, err)
	}
	if handler == nil {
		return nil, fmt.Errorf("subscribe %s: nil handler", spec.Name)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("subscribe %s: %w", spec.Name, errBusClosed)
	}

	b.nextID++
	sub := newSubscription(b, b.nextID, interest, b.withDefaults(spec, b.nextID), handler)
	b.subs = append(b.subs, sub)

	return sub, nil
}

// Close stops every subscription and rejects later publishes and subscribes.
func (b *EventBus) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var closeErr error
	for _, sub := range subs {
		if err := sub.stop(ctx); err != nil {
			closeErr = errors.Join(closeErr, err)
		}
	}
	if closeErr != nil {
		return fmt.Errorf("close event bus: %w", closeErr)
	}

	return nil
}

func (b *EventBus) withDefaults(spec bot.SubscriptionSpec, id int64) bot.SubscriptionSpec {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("subscription-%d", id)
	}
	if spec.Buffer <= 0 {
		spec.Buffer = b.defaults.Buffer
	}
	if spec.Workers <= 0 {
		spec.Workers = b.defaults.Workers
	}
	if spec.HandlerTimeout <= 0 {
		spec.HandlerTimeout = b.defaults.HandlerTimeout
	}
	if spec.Backpressure == "" {
		spec.Backpressure = b.defaults.Backpressure
	}

	return spec
}

func (b *EventBus) remove(ctx context.Context, id int64) error {
	b.mu.Lock()
	index := slices.IndexFunc(b.subs, func(sub *subscription) bool { return sub.id == id })
	var sub *subscription
	if index >= 0 {
		sub = b.subs[index]
		b.subs = slices.Delete(b.subs, index, index+1)
	}
	b.mu.Unlock()

	if sub == nil {
		return nil
	}

	return sub.stop(ctx)
}

// subscription owns one bounded queue and its workers.
type subscription struct {
	id       int64
	bus      *EventBus
	interest bot.InterestSet
	spec     bot.SubscriptionSpec
	handler  bot.EventHandler
	queue    chan *bot.Event

	ctx      context.Context
	cancel   context.CancelFunc
	closed   atomic.Bool
	workers  sync.WaitGroup
	finished chan struct{}
}

func newSubscription(
	bus *EventBus,
	id int64,
	interest bot.InterestSet,
	spec bot.SubscriptionSpec,
	handler bot.EventHandler,
) *subscription {
	interest.Kinds = slices.Clone(interest.Kinds)
	interest.CommandNames = slices.Clone(interest.CommandNames)

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		id:       id,
		bus:      bus,
		interest: interest,
		spec:     spec,
		handler:  handler,
		queue:    make(chan *bot.Event, spec.Buffer),
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
	}
	for worker := range spec.Workers {
		sub.workers.Go(func() { sub.work(worker) })
	}
	go func() {
		sub.workers.Wait()
		close(sub.finished)
	}()

	return sub
}

// Name returns the subscription name.
func (s *subscription) Name() string {
	return s.spec.Name
}

// Close detaches the subscription from its bus and waits for its workers.
func (s *subscription) Close(ctx context.Context) error {
	return s.bus.remove(ctx, s.id)
}

// deliver applies the subscription backpressure policy to one event.
func (s *subscription) deliver(ctx context.Context, event *bot.Event) error {
	if s.closed.Load() {
		return fmt.Errorf("deliver to %s: %w", s.spec.Name, bot.ErrSubscriptionClosed)
	}

	switch s.spec.Backpressure {
	case bot.BackpressureBlock:
		select {
		case s.queue <- event:
			return nil
		case <-s.ctx.Done():
			return fmt.Errorf("deliver to %s: %w", s.spec.Name, bot.ErrSubscriptionClosed)
		case <-ctx.Done():
			return fmt.Errorf("deliver to %s: %w", s.spec.Name, ctx.Err())
		}
	case bot.BackpressureDropOldest:
		if s.offer(event) {
			return nil
		}
		select {
		case <-s.queue:
		default:
		}
		if s.offer(event) {
			return nil
		}
	case bot.BackpressureDropNewest:
		if s.offer(event) {
			return nil
		}
	default:
		return fmt.Errorf("deliver to %s: %w", s.spec.Name, bot.ErrInvalidSubscription)
	}

	return fmt.Errorf("deliver to %s: %w", s.spec.Name, bot.ErrEventDropped)
}

func (s *subscription) offer(event *bot.Event) bool {
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *subscription) work(worker int) {
	scope := fmt.Sprintf("subscription %s worker %d", s.spec.Name, worker)
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.queue:
			if err := s.handle(scope, event); err != nil {
				s.bus.report(s.ctx, s.spec.Name, err)
			}
		}
	}
}

func (s *subscription) handle(scope string, event *bot.Event) error {
	ctx := s.ctx
	if s.spec.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.spec.HandlerTimeout)
		defer cancel()
	}

	if err := protect(scope, func() error { return s.handler(ctx, event) }); err != nil {
		return fmt.Errorf("handle event %s: %w", event.Kind, err)
	}

	return nil
}

// stop cancels the workers and waits for them until ctx expires.
func (s *subscription) stop(ctx context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		s.cancel()
	}

	select {
	case <-s.finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop subscription %s: %w", s.spec.Name, ctx.Err())
	}
}
