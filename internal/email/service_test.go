package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/medassist/booking-api/pkg/logger"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSMTPServiceBuildsMessage(t *testing.T) {
	d := &fakeDialer{}
	svc := &smtpService{dialer: d, from: "no-reply@medassist.local"}

	require.NoError(t, svc.Send(context.Background(), "pat@example.com", "Appointment Confirmed", "hello"))
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"pat@example.com"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment Confirmed"}, d.sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"no-reply@medassist.local"}, d.sent[0].GetHeader("From"))
}

func TestSMTPServiceWrapsDialError(t *testing.T) {
	svc := &smtpService{dialer: &fakeDialer{err: errors.New("connection refused")}}
	err := svc.Send(context.Background(), "pat@example.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
}

func TestSMTPServiceHonoursCancelledContext(t *testing.T) {
	d := &fakeDialer{}
	svc := &smtpService{dialer: d}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, svc.Send(ctx, "a@b.c", "s", "b"), context.Canceled)
	assert.Empty(t, d.sent)
}

func TestNewServiceWithoutHostLogsOnly(t *testing.T) {
	svc := NewService(Config{}, logger.Nop())
	_, ok := svc.(*logService)
	assert.True(t, ok)
	assert.NoError(t, svc.Send(context.Background(), "a@b.c", "s", "b"))
}
