package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix 环境变量前缀
	EnvPrefix = "CHARGEAMPS"

	DefaultURL          = "https://eapi.charge.space"
	DefaultScanInterval = 30 * time.Second
	MinScanInterval     = 10 * time.Second
)

// Config 应用程序配置结构
type Config struct {
	ChargeAmps ChargeAmpsConfig `mapstructure:"chargeamps"`
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ChargeAmpsConfig 远端 API 与轮询配置
type ChargeAmpsConfig struct {
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	APIKey             string        `mapstructure:"api_key"`
	URL                string        `mapstructure:"url"`
	ReadOnly           bool          `mapstructure:"readonly"`
	ChargePointIDs     []string      `mapstructure:"chargepoint_ids"`
	ScanInterval       time.Duration `mapstructure:"scan_interval"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	DefaultConnectorID int           `mapstructure:"default_connector_id"`
}

// ServerConfig 对宿主暴露的 HTTP 服务配置
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// APIToken 非空时指令接口要求 Bearer 认证
	APIToken string `mapstructure:"api_token"`
}

// RedisConfig Redis配置，用于快照镜像
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Brokers       []string `mapstructure:"brokers"`
	EventsTopic   string   `mapstructure:"events_topic"`
	CommandsTopic string   `mapstructure:"commands_topic"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
}

// DispatcherConfig 指令分发器配置
type DispatcherConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig 监控指标配置
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults 设置默认配置
func SetDefaults(v *viper.Viper) {
	// Charge Amps
	v.SetDefault("chargeamps.username", "")
	v.SetDefault("chargeamps.password", "")
	v.SetDefault("chargeamps.api_key", "")
	v.SetDefault("chargeamps.url", DefaultURL)
	v.SetDefault("chargeamps.readonly", false)
	v.SetDefault("chargeamps.chargepoint_ids", []string{})
	v.SetDefault("chargeamps.scan_interval", DefaultScanInterval)
	v.SetDefault("chargeamps.request_timeout", 30*time.Second)
	v.SetDefault("chargeamps.default_connector_id", 1)

	// 服务器配置
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.api_token", "")

	// Redis配置
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.key_prefix", "chargeamps:snapshot:")

	// Kafka配置
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "chargeamps-events")
	v.SetDefault("kafka.commands_topic", "chargeamps-commands")
	v.SetDefault("kafka.consumer_group", "chargeamps-bridge")

	// 分发器配置
	v.SetDefault("dispatcher.workers", 2)
	v.SetDefault("dispatcher.queue_size", 100)

	// 日志配置
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.async", false)

	// 监控配置
	v.SetDefault("metrics.addr", ":9090")
}

// NewViper 创建带默认值与环境变量绑定的 viper 实例
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// chargeamps.* 同时支持短别名，例如 CHARGEAMPS_USERNAME
	for _, key := range []string{"username", "password", "api_key", "url", "readonly", "chargepoint_ids", "scan_interval"} {
		_ = v.BindEnv("chargeamps."+key, EnvPrefix+"_CHARGEAMPS_"+strings.ToUpper(key), EnvPrefix+"_"+strings.ToUpper(key))
	}
	return v
}

// Load 加载配置，path 为空时只使用默认值与环境变量
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return LoadFrom(v)
}

// LoadFrom 从已有 viper 实例解析并规范化配置
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize 规范化配置：扫描间隔不低于下限，去除空白 id
func (c *Config) Normalize() {
	ca := &c.ChargeAmps
	if ca.URL == "" {
		ca.URL = DefaultURL
	}
	if ca.ScanInterval <= 0 {
		ca.ScanInterval = DefaultScanInterval
	}
	if ca.ScanInterval < MinScanInterval {
		ca.ScanInterval = MinScanInterval
	}
	if ca.RequestTimeout <= 0 {
		ca.RequestTimeout = 30 * time.Second
	}
	if ca.DefaultConnectorID < 1 {
		ca.DefaultConnectorID = 1
	}

	ids := make([]string, 0, len(ca.ChargePointIDs))
	seen := make(map[string]struct{}, len(ca.ChargePointIDs))
	for _, id := range ca.ChargePointIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	ca.ChargePointIDs = ids

	if c.Dispatcher.Workers < 1 {
		c.Dispatcher.Workers = 1
	}
	if c.Dispatcher.QueueSize < 1 {
		c.Dispatcher.QueueSize = 1
	}
}

// Validate 校验必填项
func (c *Config) Validate() error {
	var errs []error
	if c.ChargeAmps.Username == "" {
		errs = append(errs, errors.New("chargeamps.username is required"))
	}
	if c.ChargeAmps.Password == "" {
		errs = append(errs, errors.New("chargeamps.password is required"))
	}
	if c.ChargeAmps.APIKey == "" {
		errs = append(errs, errors.New("chargeamps.api_key is required"))
	}
	if u, err := url.Parse(c.ChargeAmps.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("chargeamps.url %q is not a valid URL", c.ChargeAmps.URL))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	return errors.Join(errs...)
}

// GetServerAddr 获取服务器地址
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}

// SnapshotTTL Redis 快照过期时间，为扫描间隔的三倍
func (c *Config) SnapshotTTL() time.Duration {
	return 3 * c.ChargeAmps.ScanInterval
}
