package events

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/chibi-storefront/internal/domain"
)

type mockReader struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(m.msgs) == 0 {
		if m.err != nil {
			return kafka.Message{}, m.err
		}
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := m.msgs[0]
	m.msgs = m.msgs[1:]
	return msg, nil
}

func (m *mockReader) Close() error {
	m.closed = true
	return nil
}

func TestConsumer_Run(t *testing.T) {
	r := &mockReader{msgs: []kafka.Message{
		{Value: []byte(`{"type": "cart.updated", "actor": "user:1"}`)},
		{Value: []byte(`not json`)},
		{
			Value:   []byte(`{"actor": "session:k"}`),
			Headers: []kafka.Header{{Key: "event_type", Value: []byte("favorite.toggled")}},
		},
	}}
	c := &Consumer{reader: r, log: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	var got []domain.ActivityEvent
	err := c.Run(ctx, func(ev domain.ActivityEvent) error {
		got = append(got, ev)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventCartUpdated, got[0].Type)
	assert.Equal(t, domain.EventFavoriteToggled, got[1].Type)
	assert.Equal(t, "session:k", got[1].Actor)

	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestConsumer_ReadErrorAndHandlerError(t *testing.T) {
	c := &Consumer{reader: &mockReader{err: io.ErrUnexpectedEOF}, log: zap.NewNop()}
	err := c.Run(context.Background(), func(domain.ActivityEvent) error { return nil })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	stop := errors.New("stop")
	c = &Consumer{reader: &mockReader{msgs: []kafka.Message{{Value: []byte(`{"type": "user.logged_in"}`)}}}, log: zap.NewNop()}
	err = c.Run(context.Background(), func(domain.ActivityEvent) error { return stop })
	assert.ErrorIs(t, err, stop)
}
