package twofactor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/backoffice/server/internal/models"
	"github.com/backoffice/server/pkg/logger"
	"github.com/google/uuid"
)

type EventType string

const (
	EventSecondFactorConfirmed  EventType = "second_factor.confirmed"
	EventSecondFactorEnabled    EventType = "second_factor.enabled"
	EventSecondFactorDisabled   EventType = "second_factor.disabled"
	EventBackupCodesRegenerated EventType = "backup_codes.regenerated"
	EventTrustedDeviceAdded     EventType = "trusted_device.added"
	EventTrustedDeviceRevoked   EventType = "trusted_device.revoked"
)

// Event describes a completed security state transition.
type Event struct {
	Type       EventType
	UserID     uuid.UUID
	Method     models.FactorMethod
	ResourceID *uuid.UUID
	IPAddress  string
	RequestID  string
	OccurredAt time.Time
	Details    map[string]interface{}
}

type Handler func(ctx context.Context, event Event)

// Publisher is what the service needs from an event sink.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Bus delivers events synchronously to every subscriber, in subscription order.
// Subscribers that do slow work should hand it off themselves.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("twofactor_event_handler_panic", fmt.Errorf("%v", r), map[string]interface{}{
						"event": string(event.Type),
					})
				}
			}()
			h(ctx, event)
		}()
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

type requestInfoKey struct{}

// RequestInfo carries request metadata into events without the core
// touching the transport.
type RequestInfo struct {
	IPAddress string
	RequestID string
}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}
