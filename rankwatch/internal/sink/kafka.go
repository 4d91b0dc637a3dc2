package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// DefaultKafkaTopic is the topic when none is configured.
const DefaultKafkaTopic = "rankwatch.snapshots"

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	// Brokers is a comma-separated list of host:port.
	Brokers string
	Topic   string
}

// Kafka produces each snapshot synchronously, keyed by hour bucket so a
// bucket's captures land on one partition in order.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka dials the brokers.
func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	p, err := sarama.NewSyncProducer(strings.Split(cfg.Brokers, ","), sc)
	if err != nil {
		return nil, fmt.Errorf("kafka: producer: %w", err)
	}
	return NewKafkaWithProducer(p, cfg.Topic), nil
}

// NewKafkaWithProducer wraps an existing producer.
func NewKafkaWithProducer(p sarama.SyncProducer, topic string) *Kafka {
	if topic == "" {
		topic = DefaultKafkaTopic
	}
	return &Kafka{producer: p, topic: topic}
}

func (k *Kafka) Publish(_ context.Context, snap *ranking.Snapshot) error {
	body, err := json.Marshal(wrap(snap))
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(snap.HourBucketKey),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("status"), Value: []byte(snap.Status)},
			{Key: []byte("run_id"), Value: []byte(snap.RunID)},
		},
	}
	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka: send: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.producer.Close() }
