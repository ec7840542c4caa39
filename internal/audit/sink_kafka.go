package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic keyed by solicitud id so
// consumers see per-record ordering.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects to the brokers and ensures the topic exists. Topic
// creation failures other than "already exists" are fatal at startup rather
// than at first emit.
func NewKafkaSink(ctx context.Context, brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchMaxBytes(1<<20),
		kgo.ProduceRequestTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	responses, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	for _, response := range responses {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("ensure audit topic %s: %w", response.Topic, response.Err)
		}
	}

	return &KafkaSink{client: client, topic: topic}, nil
}

// kafkaPayload is the JSON structure published to Kafka.
type kafkaPayload struct {
	Timestamp   string `json:"timestamp"`
	Action      string `json:"action"`
	SolicitudID int64  `json:"solicitud_id,omitempty"`
	Radicado    string `json:"radicado,omitempty"`
	EventName   string `json:"event_name,omitempty"`
	ResultCode  string `json:"result_code,omitempty"`
	NewStatus   string `json:"new_status,omitempty"`
	ActorID     int64  `json:"actor_id,omitempty"`
	ActorRole   string `json:"actor_role,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
}

func (s *KafkaSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(kafkaPayload{
		Timestamp:   event.Timestamp.Format(time.RFC3339Nano),
		Action:      event.Action,
		SolicitudID: event.SolicitudID,
		Radicado:    event.Radicado,
		EventName:   event.EventName,
		ResultCode:  event.ResultCode,
		NewStatus:   event.NewStatus,
		ActorID:     event.ActorID,
		ActorRole:   event.ActorRole,
		RequestID:   event.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(strconv.FormatInt(event.SolicitudID, 10)),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
