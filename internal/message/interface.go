package message

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"github.com/charging-platform/chargeamps-bridge/internal/domain/events"
)

// EventProducer 定义了向消息队列发布状态事件的接口
type EventProducer interface {
	// PublishEvent 异步发布一个事件
	PublishEvent(event events.Event) error
	// Close 关闭生产者
	Close() error
}

// Command 从消息队列收到的外部指令，Payload 由指令分发器按 Name 解析
type Command struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CommandHandler 指令处理函数
type CommandHandler func(ctx context.Context, cmd *Command)

// SaramaConsumerGroup sarama.ConsumerGroup 中消费者用到的子集，便于测试注入
type SaramaConsumerGroup interface {
	Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error
	Close() error
}
