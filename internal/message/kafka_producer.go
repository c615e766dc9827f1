package message

import (
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/events"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
	"github.com/charging-platform/chargeamps-bridge/internal/metrics"
)

// KafkaProducer 以充电桩ID为 key 向 Kafka 发布状态事件
type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *logger.Logger
	wg       sync.WaitGroup
}

// NewKafkaProducer 创建一个新的 KafkaProducer
func NewKafkaProducer(brokers []string, topic string, log *logger.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.ClientID = "chargeamps-bridge"
	config.Producer.RequiredAcks = sarama.WaitForLocal       // 只等待本地确认
	config.Producer.Compression = sarama.CompressionSnappy   // 压缩
	config.Producer.Flush.Frequency = 500 * time.Millisecond // 刷新频率
	config.Producer.Return.Successes = true                  // 开启成功交付通知
	config.Producer.Return.Errors = true                     // 开启错误通知

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}

	return NewKafkaProducerWithProducer(producer, topic, log), nil
}

// NewKafkaProducerWithProducer 使用已有的 AsyncProducer 创建，测试中注入 mock
func NewKafkaProducerWithProducer(producer sarama.AsyncProducer, topic string, log *logger.Logger) *KafkaProducer {
	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
		logger:   log,
	}

	kp.wg.Add(2)
	go kp.handleSuccesses()
	go kp.handleErrors()

	return kp
}

// PublishEvent 实现 EventProducer 接口
func (p *KafkaProducer) PublishEvent(event events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		// 同一充电桩的事件落入同一分区，保证顺序
		Key:   sarama.StringEncoder(event.GetChargePointID()),
		Value: sarama.ByteEncoder(eventData),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.GetType())},
			{Key: []byte("event_id"), Value: []byte(event.GetID())},
		},
	}

	p.producer.Input() <- msg
	metrics.EventsPublished.WithLabelValues(string(event.GetType())).Inc()
	return nil
}

// Close 关闭生产者并等待回执处理协程退出
func (p *KafkaProducer) Close() error {
	err := p.producer.Close()
	p.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	defer p.wg.Done()
	for msg := range p.producer.Successes() {
		p.logger.Debugf("Kafka message sent: topic=%s key=%s partition=%d offset=%d",
			msg.Topic, encoderString(msg.Key), msg.Partition, msg.Offset)
	}
}

func (p *KafkaProducer) handleErrors() {
	defer p.wg.Done()
	for err := range p.producer.Errors() {
		if err.Msg != nil {
			p.logger.Errorf("Failed to send Kafka message: topic=%s key=%s: %v", err.Msg.Topic, encoderString(err.Msg.Key), err.Err)
			continue
		}
		p.logger.ErrorWithErr(err.Err, "Failed to send Kafka message")
	}
}

func encoderString(e sarama.Encoder) string {
	if e == nil {
		return ""
	}
	b, err := e.Encode()
	if err != nil {
		return ""
	}
	return string(b)
}
