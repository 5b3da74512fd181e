package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePublisher struct {
	key  string
	msgs []amqp.Publishing
	err  error
}

func (p *fakePublisher) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	p.key = key
	p.msgs = append(p.msgs, msg)
	return p.err
}

type fakeSender struct {
	params []*bot.SendMessageParams
}

func (s *fakeSender) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	s.params = append(s.params, params)
	return &models.Message{}, nil
}

type failingNotifier struct{}

func (failingNotifier) Notify(context.Context, int64, string, *time.Time) error {
	return errors.New("unreachable")
}

func TestAMQPNotifierPublishesPersistentJSON(t *testing.T) {
	pub := &fakePublisher{}
	n := NewAMQPNotifier(pub, "waitlist_notifications", time.Second, zap.NewNop())
	expires := time.Date(2026, time.October, 19, 11, 0, 0, 0, time.UTC)

	require.NoError(t, n.Notify(context.Background(), 42, "Освободилось время", &expires))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "waitlist_notifications", pub.key)
	assert.Equal(t, amqp.Persistent, pub.msgs[0].DeliveryMode)
	assert.Equal(t, "application/json", pub.msgs[0].ContentType)

	decoded, err := DecodeNotification(pub.msgs[0].Body)
	require.NoError(t, err)
	assert.Equal(t, int64(42), decoded.RequesterID)
	assert.Equal(t, "Освободилось время", decoded.Message)
	require.NotNil(t, decoded.ExpiresAt)
	assert.True(t, expires.Equal(*decoded.ExpiresAt))
}

func TestAMQPNotifierWrapsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("channel closed")}
	n := NewAMQPNotifier(pub, "q", 0, zap.NewNop())

	err := n.Notify(context.Background(), 1, "msg", nil)
	assert.ErrorContains(t, err, "publish notification")
}

func TestDecodeNotificationRejectsIncomplete(t *testing.T) {
	_, err := DecodeNotification([]byte(`{"requesterId": 0, "message": "x"}`))
	assert.Error(t, err)

	_, err = DecodeNotification([]byte(`not json`))
	assert.Error(t, err)
}

func TestTelegramNotifierUsesRequesterAsChat(t *testing.T) {
	sender := &fakeSender{}
	n := NewTelegramNotifier(sender, zap.NewNop())
	expires := time.Date(2026, time.October, 19, 11, 30, 0, 0, time.UTC)

	require.NoError(t, n.Notify(context.Background(), 100, "Подошла ваша очередь", &expires))

	require.Len(t, sender.params, 1)
	assert.Equal(t, int64(100), sender.params[0].ChatID)
	assert.Contains(t, sender.params[0].Text, "Подошла ваша очередь")
	assert.Contains(t, sender.params[0].Text, "19.10.2026 11:30")
}

func TestMultiCollectsErrors(t *testing.T) {
	sender := &fakeSender{}
	m := Multi{failingNotifier{}, NewTelegramNotifier(sender, zap.NewNop()), failingNotifier{}}

	err := m.Notify(context.Background(), 5, "msg", nil)
	require.Error(t, err)
	assert.Len(t, sender.params, 1, "later notifiers still run")
	assert.ErrorContains(t, err, "unreachable")
}
