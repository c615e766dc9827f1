package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/validation"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
)

// DefaultMaxMessageBytes 单条指令消息的最大字节数
const DefaultMaxMessageBytes = 64 * 1024

// KafkaConsumer 从指令主题消费外部指令
type KafkaConsumer struct {
	consumerGroup   SaramaConsumerGroup
	topic           string
	logger          *logger.Logger
	validator       *validation.Validator
	maxMessageBytes int
	handler         CommandHandler
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// NewKafkaConsumer 初始化 KafkaConsumer
func NewKafkaConsumer(brokers []string, groupID, topic string, log *logger.Logger) (*KafkaConsumer, error) {
	config := sarama.NewConfig()
	config.ClientID = "chargeamps-bridge"
	config.Consumer.Return.Errors = true
	// 只处理启动之后的指令，历史指令不重放
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	config.Consumer.Group.Session.Timeout = 10 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 3 * time.Second

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Sarama consumer group: %w", err)
	}

	go func() {
		for err := range consumerGroup.Errors() {
			log.Errorf("Sarama consumer group error: %v", err)
		}
	}()

	return NewKafkaConsumerWithGroup(consumerGroup, topic, log), nil
}

// NewKafkaConsumerWithGroup 注入消费者组，测试中使用
func NewKafkaConsumerWithGroup(group SaramaConsumerGroup, topic string, log *logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		consumerGroup:   group,
		topic:           topic,
		logger:          log,
		validator:       validation.NewValidator(),
		maxMessageBytes: DefaultMaxMessageBytes,
	}
}

// Start 启动消费循环，handler 在消费协程中同步调用
func (c *KafkaConsumer) Start(handler CommandHandler) error {
	if handler == nil {
		return errors.New("command handler is required")
	}
	c.handler = handler

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		for {
			// Consume 在 rebalance 后返回，需要循环重新加入
			if err := c.consumerGroup.Consume(ctx, []string{c.topic}, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.Errorf("Error from Kafka consumer group: %v", err)
			}
			if ctx.Err() != nil {
				c.logger.Info("Kafka consumer context cancelled, stopping consumption")
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
	return nil
}

// Close 关闭消费者
func (c *KafkaConsumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	var err error
	if c.consumerGroup != nil {
		err = c.consumerGroup.Close()
	}
	c.wg.Wait()
	return err
}

// Setup 实现 sarama.ConsumerGroupHandler
func (c *KafkaConsumer) Setup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group setup completed")
	return nil
}

// Cleanup 实现 sarama.ConsumerGroupHandler
func (c *KafkaConsumer) Cleanup(sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka consumer group cleanup completed")
	return nil
}

// ConsumeClaim 解析指令并交给 handler；无论处理结果如何都会提交位点
func (c *KafkaConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	c.logger.Infof("Consuming commands from partition %d", claim.Partition())

	for msg := range claim.Messages() {
		if cmd, err := c.decode(msg.Value); err != nil {
			c.logger.Warnf("Dropping Kafka command at offset %d: %v", msg.Offset, err)
		} else {
			c.handler(session.Context(), cmd)
		}
		session.MarkMessage(msg, "")

		c.logger.Debugf("Message consumed and marked: topic=%s partition=%d offset=%d",
			msg.Topic, msg.Partition, msg.Offset)
	}
	return nil
}

func (c *KafkaConsumer) decode(value []byte) (*Command, error) {
	if err := c.validator.ValidateMessageSize(value, c.maxMessageBytes); err != nil {
		return nil, err
	}
	var cmd Command
	if err := json.Unmarshal(value, &cmd); err != nil {
		return nil, fmt.Errorf("invalid command JSON: %w", err)
	}
	if cmd.Name == "" {
		return nil, errors.New("command name is required")
	}
	return &cmd, nil
}
