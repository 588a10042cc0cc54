package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nanobot/pkg/bot"
)

// Driver streams Telegram updates into the kernel as neutral events.
type Driver struct {
	name           string
	session        sessionRunner
	updates        <-chan rawUpdate
	mapper         eventMapper
	publishTimeout time.Duration

	// dropped receives updates that could not be mapped. They never stop the driver.
	dropped func(ctx context.Context, err error)
}

// Name returns the configured driver instance name.
func (d *Driver) Name() string {
	return d.name
}

// Start runs the Telegram session and publishes every mapped update to sink.
// It returns nil on cancellation and an error when the session or a publish fails.
func (d *Driver) Start(ctx context.Context, sink bot.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver %s: nil sink", d.name)
	}

	err := d.session.Run(ctx, func(runCtx context.Context) error {
		for {
			select {
			case <-runCtx.Done():
				return nil
			case raw, ok := <-d.updates:
				if !ok {
					return nil
				}
				if err := d.forward(runCtx, raw, sink); err != nil {
					return err
				}
			}
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("start telegram driver %s: %w", d.name, err)
	}

	return nil
}

// forward maps one update and publishes it under the publish timeout.
func (d *Driver) forward(ctx context.Context, raw rawUpdate, sink bot.EventSink) error {
	event, err := d.mapSafely(raw)
	if err != nil {
		d.dropped(ctx, err)
		return nil
	}
	if event == nil {
		return nil
	}
	event.Source = bot.EventSource{Platform: DriverPlatform, ID: d.name}

	publishCtx, cancel := context.WithTimeout(ctx, d.publishTimeout)
	defer cancel()
	if err := sink.Publish(publishCtx, event); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}

	return nil
}

func (d *Driver) mapSafely(raw rawUpdate) (event *bot.Event, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("map gotd update: panic recovered: %v", recovered)
		}
	}()

	return d.mapper.mapUpdate(raw)
}

// Shutdown is a no-op; the session ends with the Start context.
func (d *Driver) Shutdown(context.Context) error {
	return nil
}

var _ bot.Driver = (*Driver)(nil)
