package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medassist/booking-api/pkg/messaging"
)

func newBroker(t *testing.T) messaging.Broker {
	t.Helper()
	srv := miniredis.RunT(t)
	log := zerolog.Nop()
	b, err := NewRedisBroker(Config{URL: "redis://" + srv.Addr()}, &log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	b := newBroker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	msgs, err := b.Subscribe(ctx, messaging.ChannelAppointments)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, messaging.ChannelAppointments, messaging.Message{
		Type:    "appointment.accepted",
		Payload: map[string]string{"appointment_id": "a-1"},
	}))

	select {
	case raw := <-msgs:
		var got messaging.Message
		require.NoError(t, json.Unmarshal(raw, &got))
		assert.Equal(t, "appointment.accepted", got.Type)
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestNewRedisBrokerRejectsBadURL(t *testing.T) {
	log := zerolog.Nop()
	_, err := NewRedisBroker(Config{URL: "not a url"}, &log)
	assert.Error(t, err)
}
