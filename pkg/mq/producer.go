package mq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyBrokers       = errors.New("empty brokers")
	ErrEmptyTopics        = errors.New("empty topics")
	ErrEmptyTopicName     = errors.New("empty topic name")
	ErrUnsupportedPayload = errors.New("unsupported payload")
)

const flushFrequency = 500 * time.Millisecond

// Message is the envelope written to the event stream. Payload selects
// the topic, Key drives partitioning so one campaign's events stay
// ordered.
type Message struct {
	Payload Payload     `json:"payload,omitempty"`
	Key     string      `json:"key,omitempty"`
	Body    interface{} `json:"body,omitempty"`
}

type ProducerConfig struct {
	Brokers []string          `json:"brokers,omitempty"`
	Topics  map[uint32]string `json:"topics,omitempty"`
}

func (c *ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return ErrEmptyBrokers
	}
	if len(c.Topics) == 0 {
		return ErrEmptyTopics
	}

	for payload, topic := range c.Topics {
		if _, ok := Payloads[Payload(payload)]; !ok {
			return ErrUnsupportedPayload
		}
		if topic == "" {
			return ErrEmptyTopicName
		}
	}

	return nil
}

// Producer publishes engagement events asynchronously. Delivery errors
// are logged, a dropped event never blocks or fails the send path that
// produced it.
type Producer struct {
	producer sarama.AsyncProducer
	topics   map[uint32]string
}

func NewProducer(ctx context.Context, cfg ProducerConfig) (*Producer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sc := sarama.NewConfig()
	sc.Producer.Flush.Frequency = flushFrequency
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Producer.RequiredAcks = sarama.WaitForLocal
	sc.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, err
	}

	p := &Producer{
		producer: producer,
		topics:   cfg.Topics,
	}
	go p.drainErrors(ctx)

	return p, nil
}

func (p *Producer) drainErrors(ctx context.Context) {
	for err := range p.producer.Errors() {
		log.Ctx(ctx).Error().Msgf("produce failed, topic: %s, err: %v", err.Msg.Topic, err.Err)
	}
}

func (p *Producer) SendMessage(msg *Message) error {
	topic, ok := p.topics[uint32(msg.Payload)]
	if !ok {
		return ErrUnsupportedPayload
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(msg.Key),
		Value: sarama.ByteEncoder(b),
	}

	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
