package bot

import (
	"context"
	"time"
)

// BackpressurePolicy decides what a full subscription queue does with the next event.
type BackpressurePolicy string

const (
	BackpressureDropNewest BackpressurePolicy = "drop_newest"
	BackpressureDropOldest BackpressurePolicy = "drop_oldest"
	// BackpressureBlock makes Publish wait for room or for its context.
	BackpressureBlock BackpressurePolicy = "block"
)

// SubscriptionSpec tunes one subscription. Zero fields take the bus defaults.
type SubscriptionSpec struct {
	Name           string
	Buffer         int
	Workers        int
	HandlerTimeout time.Duration
	Backpressure   BackpressurePolicy
}

// OrderedSubscription is a single-worker blocking spec. Events reach the
// handler one at a time in publish order and are never dropped.
func OrderedSubscription(name string) SubscriptionSpec {
	return SubscriptionSpec{Name: name, Workers: 1, Backpressure: BackpressureBlock}
}

type Subscription interface {
	Name() string
	// Close stops delivery and waits for in-flight handlers until ctx ends.
	Close(ctx context.Context) error
}

// EventBus fans published events out to subscriptions whose interest matches.
type EventBus interface {
	EventSink
	Subscribe(ctx context.Context, interest InterestSet, spec SubscriptionSpec, handler EventHandler) (Subscription, error)
	Close(ctx context.Context) error
}
