package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	err   error
	block chan struct{}
	sent  []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.block != nil {
		<-d.block
	}
	d.sent = append(d.sent, m...)
	return d.err
}

func confirmation() Confirmation {
	return Confirmation{
		RegistrationID: "reg-1",
		EventID:        "ev-1",
		EventName:      "Go Meetup",
		EventLocation:  "Warsaw",
		EventStartsAt:  time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC),
		Recipient:      "jane@example.com",
		Name:           "Jane Doe",
		Token:          "tok-1",
		QRCode:         []byte("\x89PNG fake"),
		CodeURL:        "https://events.example.com/v1/checkin-codes/tok-1",
	}
}

func TestMailerMessage(t *testing.T) {
	m := NewMailerWithDialer(&fakeDialer{}, "events@example.com", zap.NewNop())

	msg, err := m.Message(confirmation())
	require.NoError(t, err)
	assert.Equal(t, []string{"Registration confirmed: Go Meetup"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "jane@example.com")
	assert.Contains(t, out, "cid:checkin.png")
	assert.Contains(t, out, "Content-ID: <checkin.png>")
}

func TestMailerSend(t *testing.T) {
	d := &fakeDialer{}
	m := NewMailerWithDialer(d, "events@example.com", zap.NewNop())

	res := m.Send(context.Background(), confirmation())
	assert.True(t, res.Sent)
	assert.Len(t, d.sent, 1)
}

func TestMailerSendFailure(t *testing.T) {
	m := NewMailerWithDialer(&fakeDialer{err: errors.New("connection refused")}, "events@example.com", zap.NewNop())

	res := m.Send(context.Background(), confirmation())
	assert.False(t, res.Sent)
	assert.Equal(t, "connection refused", res.Reason)
}

func TestMailerSendHonorsContext(t *testing.T) {
	d := &fakeDialer{block: make(chan struct{})}
	defer close(d.block)
	m := NewMailerWithDialer(d, "events@example.com", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := m.Send(ctx, confirmation())
	assert.False(t, res.Sent)
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Reason)
}

func TestMailerSendWithoutRecipient(t *testing.T) {
	d := &fakeDialer{}
	m := NewMailerWithDialer(d, "events@example.com", zap.NewNop())

	c := confirmation()
	c.Recipient = ""
	res := m.Send(context.Background(), c)
	assert.False(t, res.Sent)
	assert.Empty(t, d.sent)
}

func TestLogNotifier(t *testing.T) {
	res := NewLogNotifier(zap.NewNop()).Send(context.Background(), confirmation())
	assert.True(t, res.Sent)
}
