package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestPublisher_PublishesJSONToTopic(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, NewZapLogger(logger))
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, TopicBookingConfirmed)
	require.NoError(t, err)

	publisher := NewPublisher(pubSub, logger)
	err = publisher.Publish(ctx, TopicBookingConfirmed, BookingConfirmed{
		BookingID: "booking-1",
		PaymentID: "payment-1",
		Method:    "wallet",
		Amount:    20000,
		Currency:  "LKR",
	})
	require.NoError(t, err)

	select {
	case msg := <-messages:
		msg.Ack()
		assert.Equal(t, TopicBookingConfirmed, msg.Metadata.Get("event_type"))

		var got BookingConfirmed
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		assert.Equal(t, "booking-1", got.BookingID)
		assert.Equal(t, 20000.0, got.Amount)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("broker down") }
func (failingPublisher) Close() error                              { return nil }

func TestPublisher_WrapsBrokerError(t *testing.T) {
	t.Parallel()

	publisher := NewPublisher(failingPublisher{}, zap.NewNop())

	err := publisher.Publish(context.Background(), TopicPaymentFailed, PaymentFailed{PaymentID: "p1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), TopicPaymentFailed)
}
