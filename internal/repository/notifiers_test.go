package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinSignal/internal/domain/models"
	"FinSignal/pkg/kafka"
)

type recordingPublisher struct {
	topic string
	msgs  []kafka.Message
	err   error
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error {
	p.topic = topic
	p.msgs = append(p.msgs, messages...)
	return p.err
}

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(ctx context.Context, s models.ConfirmedSignal) error {
	c.calls++
	return c.err
}

func TestKafkaNotifierKeysBySymbol(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewKafkaNotifier(pub, "")

	sig := models.ConfirmedSignal{Signal: pending("a", "SOLUSDT")}
	require.NoError(t, n.Notify(context.Background(), sig))

	assert.Equal(t, TopicSignalsConfirmed, pub.topic)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, []byte("SOLUSDT"), pub.msgs[0].Key)
	assert.Equal(t, sig, pub.msgs[0].Value)
}

func TestKafkaNotifierWrapsError(t *testing.T) {
	boom := errors.New("broker down")
	n := NewKafkaNotifier(&recordingPublisher{err: boom}, "custom")
	err := n.Notify(context.Background(), models.ConfirmedSignal{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "custom")
}

func TestMultiNotifierAttemptsAll(t *testing.T) {
	boom := errors.New("boom")
	a := &countingNotifier{err: boom}
	b := &countingNotifier{}
	m := MultiNotifier{a, nil, b}

	err := m.Notify(context.Background(), models.ConfirmedSignal{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, MultiNotifier{b}.Notify(context.Background(), models.ConfirmedSignal{}))
}
