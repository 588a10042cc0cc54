package driver

import (
	"context"
	"fmt"

	"nanobot/pkg/bot"
)

// Router is the process-wide bot.SinkDispatcher. It forwards each request to
// the dispatcher of the driver named by the request target.
type Router struct {
	routes []route
}

type route struct {
	source     bot.EventSource
	dispatcher bot.SinkDispatcher
}

// NewRouter collects the dispatchers of runtimes. Runtimes without one are receive-only.
func NewRouter(runtimes []Runtime) (*Router, error) {
	router := &Router{}
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		if runtime.Source.ID == "" {
			return nil, fmt.Errorf("new router: dispatcher without source id")
		}
		if _, found := router.byID(runtime.Source.ID); found {
			return nil, fmt.Errorf("new router: duplicate source id %s", runtime.Source.ID)
		}
		router.routes = append(router.routes, route{source: runtime.Source, dispatcher: runtime.SinkDispatcher})
	}

	return router, nil
}

// SendMessage forwards request to the selected driver dispatcher.
func (r *Router) SendMessage(ctx context.Context, request bot.SendMessageRequest) (*bot.OutboundMessage, error) {
	selected, err := r.pick(request.Target.Source)
	if err != nil {
		return nil, fmt.Errorf("route send message: %w", err)
	}

	sent, err := selected.dispatcher.SendMessage(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("route send message via %s: %w", selected.source.ID, err)
	}

	return sent, nil
}

// pick selects by source id, then by platform when that is unambiguous. A
// target without a source is accepted only when a single dispatcher exists.
func (r *Router) pick(source *bot.EventSource) (route, error) {
	if len(r.routes) == 0 {
		return route{}, fmt.Errorf("%w: no dispatchers configured", bot.ErrOutboundUnsupported)
	}

	switch {
	case source == nil || (source.ID == "" && source.Platform == ""):
		if len(r.routes) == 1 {
			return r.routes[0], nil
		}
		return route{}, fmt.Errorf("%w: target has no source and %d dispatchers exist", bot.ErrOutboundUnsupported, len(r.routes))
	case source.ID != "":
		found, ok := r.byID(source.ID)
		if !ok {
			return route{}, fmt.Errorf("%w: unknown source %s", bot.ErrOutboundUnsupported, source.ID)
		}
		if source.Platform != "" && source.Platform != found.source.Platform {
			return route{}, fmt.Errorf(
				"%w: source %s is %s, not %s",
				bot.ErrOutboundUnsupported, source.ID, found.source.Platform, source.Platform,
			)
		}
		return found, nil
	default:
		var matches []route
		for _, candidate := range r.routes {
			if candidate.source.Platform == source.Platform {
				matches = append(matches, candidate)
			}
		}
		if len(matches) != 1 {
			return route{}, fmt.Errorf(
				"%w: %d dispatchers for platform %s",
				bot.ErrOutboundUnsupported, len(matches), source.Platform,
			)
		}
		return matches[0], nil
	}
}

func (r *Router) byID(id string) (route, bool) {
	for _, candidate := range r.routes {
		if candidate.source.ID == id {
			return candidate, true
		}
	}

	return route{}, false
}

var _ bot.SinkDispatcher = (*Router)(nil)
