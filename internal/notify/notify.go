// Package notify delivers two-factor codes out of band.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/internal/twofactor"
	"github.com/backoffice/server/pkg/logger"
)

var (
	ErrInvalidConfig  = errors.New("notify: invalid config")
	ErrNoRoute        = errors.New("notify: no sender for method")
	ErrQueueFull      = errors.New("notify: queue full")
	ErrDispatcherDone = errors.New("notify: dispatcher closed")
)

// Router picks a sender per factor method.
type Router struct {
	routes map[models.FactorMethod]twofactor.Sender
}

func NewRouter() *Router {
	return &Router{routes: make(map[models.FactorMethod]twofactor.Sender)}
}

func (r *Router) Handle(method models.FactorMethod, sender twofactor.Sender) *Router {
	r.routes[method] = sender
	return r
}

func (r *Router) Send(ctx context.Context, msg twofactor.Message) error {
	sender, ok := r.routes[msg.Method]
	if !ok {
		return fmt.Errorf("%w %q", ErrNoRoute, string(msg.Method))
	}
	return sender.Send(ctx, msg)
}

// LogSender records that a code was sent without any transport. The code
// itself is never written.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg twofactor.Message) error {
	logger.InfoWithUser(msg.UserID.String(), "twofactor_code_logged", map[string]interface{}{
		"method":      string(msg.Method),
		"destination": logger.MaskDestination(msg.Destination),
		"expires_at":  msg.ExpiresAt,
	})
	return nil
}
