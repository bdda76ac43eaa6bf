package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/core/domain"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/logger"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes every notice as a JSON message keyed by its category.
// Publish errors are logged, never returned to the run that emitted the notice.
type KafkaSink struct {
	writer messageWriter
	log    *logger.Logger
}

func NewKafkaSink(brokers []string, topic string, log *logger.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 10 * time.Second,
	}
	return &KafkaSink{writer: w, log: log.WithField("topic", topic)}
}

func (s *KafkaSink) Notify(ctx context.Context, n domain.Notice) {
	value, err := json.Marshal(n)
	if err != nil {
		s.log.WithError(err).Error("encode notice")
		return
	}

	msg := kafka.Message{
		Key:   []byte(n.Category.String()),
		Value: value,
		Time:  time.Now(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.log.WithError(err).Warn("publish notice to kafka")
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink writes notices to the structured log at a level matching their category.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, n domain.Notice) {
	l := s.log.WithFields(map[string]interface{}{
		"category": n.Category.String(),
		"text":     n.Text,
	})
	if n.Report != nil {
		l = l.WithField("outcome", n.Report.Outcome).WithField("duration_ms", n.Report.Duration().Milliseconds())
	}

	switch n.Category {
	case domain.CategoryIgnore:
	case domain.CategoryError:
		l.Error(n.Title)
	case domain.CategoryWarning:
		l.Warn(n.Title)
	default:
		l.Info(n.Title)
	}
}

var (
	_ ports.Notifier = (*KafkaSink)(nil)
	_ ports.Notifier = (*LogSink)(nil)
)
