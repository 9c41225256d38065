// Package notify hands outbound email notifications to the delivery service.
// Delivery is never awaited; a failed hand-off is logged and dropped.
package notify

import (
	"context"
	"io"
	"log"
	"time"
)

// Kind names the template the delivery service renders.
type Kind string

const (
	KindAccountRegistered Kind = "account-registered"
	KindEmailConfirmation Kind = "email-confirmation"
	KindPasswordReset     Kind = "password-reset"
	KindOrderConfirmation Kind = "order-confirmation"
)

// Message is one queued notification.
type Message struct {
	Kind      Kind                   `json:"kind"`
	ProjectID string                 `json:"projectId"`
	To        string                 `json:"to"`
	Locale    string                 `json:"locale,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Dispatcher hands a message to the delivery service.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// LogDispatcher writes messages to a logger. Used when no queue is configured.
type LogDispatcher struct {
	Logger *log.Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	if d.Logger != nil {
		d.Logger.Printf("notify: %s to=%s project=%s", msg.Kind, msg.To, msg.ProjectID)
	}
	return nil
}

const defaultTimeout = 2 * time.Second

// Notifier sends messages best-effort: errors are logged, never returned, and
// cancellation of the triggering request does not abort the hand-off.
type Notifier struct {
	dispatcher Dispatcher
	logger     *log.Logger
	timeout    time.Duration
	now        func() time.Time
}

func NewNotifier(dispatcher Dispatcher, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if dispatcher == nil {
		dispatcher = LogDispatcher{Logger: logger}
	}
	return &Notifier{dispatcher: dispatcher, logger: logger, timeout: defaultTimeout, now: time.Now}
}

// Notify dispatches msg. A nil Notifier is a no-op.
func (n *Notifier) Notify(ctx context.Context, msg Message) {
	if n == nil {
		return
	}
	if msg.To == "" {
		n.logger.Printf("notify: skip %s err=missing recipient", msg.Kind)
		return
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = n.now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	if err := n.dispatcher.Dispatch(ctx, msg); err != nil {
		n.logger.Printf("notify: dispatch %s to=%s err=%v", msg.Kind, msg.To, err)
	}
}
