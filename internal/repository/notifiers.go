package repository

import (
	"context"
	"errors"
	"fmt"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/pkg/kafka"
)

const TopicSignalsConfirmed = "signals.confirmed"

type publisher interface {
	PublishBatch(ctx context.Context, topic string, messages []kafka.Message) error
}

// KafkaNotifier publishes confirmed signals keyed by symbol.
type KafkaNotifier struct {
	p     publisher
	topic string
}

var _ domrepo.Notifier = (*KafkaNotifier)(nil)

func NewKafkaNotifier(p publisher, topic string) *KafkaNotifier {
	if topic == "" {
		topic = TopicSignalsConfirmed
	}
	return &KafkaNotifier{p: p, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, s models.ConfirmedSignal) error {
	msg := kafka.Message{Key: []byte(s.Signal.Symbol), Type: "signal.confirmed", Value: s}
	if err := n.p.PublishBatch(ctx, n.topic, []kafka.Message{msg}); err != nil {
		return fmt.Errorf("publish %s: %w", n.topic, err)
	}
	return nil
}

// MultiNotifier fans a signal out to every sink. All sinks are attempted.
type MultiNotifier []domrepo.Notifier

var _ domrepo.Notifier = MultiNotifier(nil)

func (m MultiNotifier) Notify(ctx context.Context, s models.ConfirmedSignal) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
