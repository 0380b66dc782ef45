package notify

import "context"

// Notifier delivers fire-and-forget messages to a requester. Failures are
// logged by implementations and never block the caller's state machine.
type Notifier interface {
	Notify(ctx context.Context, recipient, text string) error
}
