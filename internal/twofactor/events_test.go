package twofactor

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBusDeliversInOrderAndSurvivesPanics(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(func(_ context.Context, e Event) { got = append(got, "first:"+string(e.Type)) })
	bus.Subscribe(func(context.Context, Event) { panic("boom") })
	bus.Subscribe(func(_ context.Context, e Event) { got = append(got, "third:"+string(e.Type)) })

	bus.Publish(context.Background(), Event{Type: EventSecondFactorConfirmed, UserID: uuid.New()})

	assert.Equal(t, []string{"first:second_factor.confirmed", "third:second_factor.confirmed"}, got)
}

func TestRequestInfoRoundTrip(t *testing.T) {
	ctx := WithRequestInfo(context.Background(), RequestInfo{IPAddress: "10.0.0.1", RequestID: "req-1"})
	info := RequestInfoFrom(ctx)
	assert.Equal(t, "10.0.0.1", info.IPAddress)
	assert.Equal(t, "req-1", info.RequestID)
	assert.Equal(t, RequestInfo{}, RequestInfoFrom(context.Background()))
}
