package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charging-platform/chargeamps-bridge/internal/api"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/events"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/validation"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
	"github.com/charging-platform/chargeamps-bridge/internal/message"
	"github.com/charging-platform/chargeamps-bridge/internal/metrics"
)

var (
	// ErrQueueFull 指令队列已满
	ErrQueueFull = errors.New("command queue is full")
	// ErrDispatcherStopped 分发器已停止
	ErrDispatcherStopped = errors.New("command dispatcher is stopped")
	// ErrNoChargePoint 指令未指定充电桩且没有缺省充电桩
	ErrNoChargePoint = errors.New("no chargepoint available for command")
)

// Handler 指令的执行方，由充电桩管理器实现
type Handler interface {
	DefaultChargePointID() (string, bool)
	DefaultConnectorID() int
	SetLights(ctx context.Context, chargePointID string, dimmer *device.DimmerLevel, downLight *bool) error
	SetConnectorMode(ctx context.Context, chargePointID string, connectorID int, mode device.ConnectorMode) error
	SetMaxCurrent(ctx context.Context, chargePointID string, connectorID int, maxCurrent float64) error
	SetCableLock(ctx context.Context, chargePointID string, connectorID int, locked bool) error
	RemoteStart(ctx context.Context, chargePointID string, connectorID int, auth device.StartAuth) error
	RemoteStop(ctx context.Context, chargePointID string, connectorID int) error
	Reboot(ctx context.Context, chargePointID string) error
}

// EventProducer 指令结果事件的发布端
type EventProducer interface {
	PublishEvent(event events.Event) error
}

// DispatcherConfig 分发器配置
type DispatcherConfig struct {
	Workers        int           `json:"workers"`
	QueueSize      int           `json:"queue_size"`
	CommandTimeout time.Duration `json:"command_timeout"`
	EventSource    string        `json:"event_source"`
	ReadOnly       bool          `json:"readonly"`
}

// DefaultDispatcherConfig 默认分发器配置
func DefaultDispatcherConfig() *DispatcherConfig {
	return &DispatcherConfig{
		Workers:        2,
		QueueSize:      100,
		CommandTimeout: 2 * time.Minute,
		EventSource:    "chargeamps-bridge",
	}
}

type job struct {
	name    string
	payload json.RawMessage
}

// Dispatcher 验证外部指令并交给管理器执行。
// 验证失败只记录警告并丢弃，不会改变任何状态。
type Dispatcher struct {
	handler   Handler
	config    *DispatcherConfig
	validator *validation.Validator
	events    *events.EventFactory
	producer  EventProducer

	queue   chan job
	mu      sync.RWMutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *logger.Logger
}

// NewDispatcher 创建分发器，producer 可以为 nil
func NewDispatcher(handler Handler, config *DispatcherConfig, producer EventProducer, log *logger.Logger) *Dispatcher {
	if config == nil {
		config = DefaultDispatcherConfig()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 2 * time.Minute
	}
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler:   handler,
		config:    config,
		validator: validation.NewValidator(),
		events:    events.NewEventFactory(config.EventSource, config.ReadOnly),
		producer:  producer,
		queue:     make(chan job, config.QueueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.Component("command-dispatcher"),
	}
}

// Start 启动工作协程
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	if d.started {
		return nil
	}
	d.started = true
	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Infof("Command dispatcher started with %d worker(s)", d.config.Workers)
	return nil
}

// Stop 停止接收新指令，处理完队列中剩余指令后返回
func (d *Dispatcher) Stop() error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.logger.Info("Command dispatcher stopped")
	return nil
}

// Enqueue 异步提交指令，不阻塞调用方
func (d *Dispatcher) Enqueue(name string, payload json.RawMessage) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- job{name: name, payload: payload}:
		return nil
	default:
		d.logger.Warnf("Dropping command %s: queue is full", name)
		metrics.CommandsProcessed.WithLabelValues(metricLabel(name), "dropped").Inc()
		return ErrQueueFull
	}
}

// HandleCommand 实现 message.CommandHandler，用于 Kafka 指令主题
func (d *Dispatcher) HandleCommand(_ context.Context, cmd *message.Command) {
	_ = d.Enqueue(cmd.Name, cmd.Payload)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(d.ctx, d.config.CommandTimeout)
		_ = d.Dispatch(ctx, j.name, j.payload)
		cancel()
	}
	d.logger.Debugf("Command worker %d exited", id)
}

// Dispatch 同步解析、验证并执行指令
func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) error {
	cmd, err := DecodeCommand(name, payload)
	if err != nil {
		d.reject(name, err)
		return err
	}
	if err := d.resolve(cmd.target()); err != nil {
		d.reject(name, err)
		return err
	}
	return d.Execute(ctx, cmd)
}

// Execute 执行已验证的指令，目标需已补全
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) error {
	t := cmd.target()
	connectorID := t.ConnectorID

	var err error
	switch c := cmd.(type) {
	case *SetLight:
		connectorID = 0
		var dimmer *device.DimmerLevel
		raw := c.Dimmer
		if raw == nil && c.Brightness != nil {
			mapped := device.DimmerForBrightness(*c.Brightness)
			raw = &mapped
		}
		if raw != nil {
			level, perr := device.ParseDimmer(*raw)
			if perr != nil {
				d.reject(string(c.Kind()), perr)
				return perr
			}
			dimmer = &level
		}
		err = d.handler.SetLights(ctx, t.ChargePointID, dimmer, c.DownLight)
	case *SetMaxCurrent:
		err = d.handler.SetMaxCurrent(ctx, t.ChargePointID, t.ConnectorID, float64(*c.MaxCurrent))
	case *Enable:
		err = d.handler.SetConnectorMode(ctx, t.ChargePointID, t.ConnectorID, device.ConnectorModeOn)
	case *Disable:
		err = d.handler.SetConnectorMode(ctx, t.ChargePointID, t.ConnectorID, device.ConnectorModeOff)
	case *CableLock:
		err = d.handler.SetCableLock(ctx, t.ChargePointID, t.ConnectorID, true)
	case *CableUnlock:
		err = d.handler.SetCableLock(ctx, t.ChargePointID, t.ConnectorID, false)
	case *RemoteStart:
		err = d.handler.RemoteStart(ctx, t.ChargePointID, t.ConnectorID, device.StartAuth{
			RfidLength:            c.RfidLength,
			RfidFormat:            c.RfidFormat,
			Rfid:                  c.Rfid,
			ExternalTransactionID: string(c.ExternalTransactionID),
		})
	case *RemoteStop:
		err = d.handler.RemoteStop(ctx, t.ChargePointID, t.ConnectorID)
	case *Reboot:
		connectorID = 0
		err = d.handler.Reboot(ctx, t.ChargePointID)
	default:
		err = fmt.Errorf("unsupported command %T", cmd)
	}

	name := string(cmd.Kind())
	if err != nil {
		kind := api.ErrorKind(err)
		if api.IsRecoverable(err) {
			d.logger.Errorf("Command %s on %s failed: %v", name, t.ChargePointID, err)
		} else {
			d.logger.Errorf("Command %s on %s failed (%s): %v", name, t.ChargePointID, kind, err)
		}
		metrics.CommandsProcessed.WithLabelValues(name, kind).Inc()
		d.publish(d.events.CreateCommandFailedEvent(t.ChargePointID, name, connectorID, err))
		return err
	}
	d.logger.Infof("Command %s on %s executed", name, t.ChargePointID)
	metrics.CommandsProcessed.WithLabelValues(name, "executed").Inc()
	d.publish(d.events.CreateCommandExecutedEvent(t.ChargePointID, name, connectorID))
	return nil
}

// resolve 补全缺省充电桩与连接器
func (d *Dispatcher) resolve(t *Target) error {
	if t.ChargePointID == "" {
		id, ok := d.handler.DefaultChargePointID()
		if !ok {
			return ErrNoChargePoint
		}
		t.ChargePointID = id
	}
	if err := d.validator.ValidateChargePointID(t.ChargePointID); err != nil {
		return err
	}
	if t.ConnectorID == 0 {
		t.ConnectorID = d.handler.DefaultConnectorID()
	}
	return nil
}

func (d *Dispatcher) reject(name string, err error) {
	d.logger.Warnf("Rejected command %s: %v", name, err)
	metrics.CommandsProcessed.WithLabelValues(metricLabel(name), "rejected").Inc()
}

// metricLabel 未知指令统一归为 unknown，避免标签基数失控
func metricLabel(name string) string {
	for _, k := range Kinds {
		if string(k) == name {
			return name
		}
	}
	return "unknown"
}

func (d *Dispatcher) publish(event events.Event) {
	if d.producer == nil {
		return
	}
	if err := d.producer.PublishEvent(event); err != nil {
		d.logger.Warnf("Failed to publish %s event: %v", event.GetType(), err)
	}
}
