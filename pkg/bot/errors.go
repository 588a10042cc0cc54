package bot

import "errors"

// Sentinel errors shared by the kernel, drivers and modules. Callers match
// them with errors.Is; they are always wrapped with context.
var (
	ErrInvalidEvent        = errors.New("bot: invalid event")
	ErrInvalidSubscription = errors.New("bot: invalid subscription")
	ErrSubscriptionClosed  = errors.New("bot: subscription closed")
	// ErrEventDropped is reported when a full subscription queue drops an event.
	ErrEventDropped = errors.New("bot: event dropped")

	ErrServiceAlreadyRegistered = errors.New("bot: service already registered")
	ErrServiceNotFound          = errors.New("bot: service not found")
	ErrModuleAlreadyRegistered  = errors.New("bot: module already registered")
	ErrDriverAlreadyRegistered  = errors.New("bot: driver already registered")

	ErrInvalidOutboundRequest = errors.New("bot: invalid outbound request")
	// ErrOutboundUnsupported means no dispatcher can deliver the request.
	ErrOutboundUnsupported = errors.New("bot: outbound unsupported")
)
