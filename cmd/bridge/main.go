package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/chargeamps-bridge/internal/api"
	"github.com/charging-platform/chargeamps-bridge/internal/auth"
	"github.com/charging-platform/chargeamps-bridge/internal/business/chargepoint"
	"github.com/charging-platform/chargeamps-bridge/internal/cache"
	"github.com/charging-platform/chargeamps-bridge/internal/config"
	"github.com/charging-platform/chargeamps-bridge/internal/gateway"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
	"github.com/charging-platform/chargeamps-bridge/internal/message"
	"github.com/charging-platform/chargeamps-bridge/internal/storage"
	"github.com/charging-platform/chargeamps-bridge/internal/transport/httpapi"
	"github.com/charging-platform/chargeamps-bridge/internal/transport/server"
)

const eventSource = "chargeamps-bridge"

func main() {
	configPath := flag.String("config", os.Getenv("CHARGEAMPS_CONFIG"), "path to config file")
	flag.Parse()

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 远端 API 客户端
	httpClient := api.NewHTTPClient(cfg.ChargeAmps.RequestTimeout)
	tokens := auth.NewTokenManager(cfg.ChargeAmps.URL, auth.Credentials{
		Email:    cfg.ChargeAmps.Username,
		Password: cfg.ChargeAmps.Password,
		APIKey:   cfg.ChargeAmps.APIKey,
	}, httpClient, log.Component("token-manager"))
	client := api.NewClient(cfg.ChargeAmps.URL, tokens, httpClient, log)
	log.Infof("Charge Amps client initialized for %s", cfg.ChargeAmps.URL)

	managerConfig := &chargepoint.Config{
		ChargePointIDs:     cfg.ChargeAmps.ChargePointIDs,
		ReadOnly:           cfg.ChargeAmps.ReadOnly,
		ScanInterval:       cfg.ChargeAmps.ScanInterval,
		DefaultConnectorID: cfg.ChargeAmps.DefaultConnectorID,
		SnapshotTTL:        cfg.SnapshotTTL(),
		EventSource:        eventSource,
	}
	var opts []chargepoint.Option

	// 4. 可选的 Redis 快照镜像
	var snapshots *storage.RedisStorage
	if cfg.Redis.Enabled {
		snapshots, err = storage.NewRedisStorage(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		opts = append(opts, chargepoint.WithSnapshotStore(snapshots))
		log.Infof("Snapshot storage initialized at %s", cfg.Redis.Addr)
	}

	// 5. 可选的 Kafka 事件与指令
	var producer *message.KafkaProducer
	var consumer *message.KafkaConsumer
	var eventProducer gateway.EventProducer
	if cfg.Kafka.Enabled {
		producer, err = message.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		eventProducer = producer
		opts = append(opts, chargepoint.WithEventProducer(producer))
		log.Infof("Kafka producer initialized for topic %s", cfg.Kafka.EventsTopic)

		consumer, err = message.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.CommandsTopic, log)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka consumer: %v", err)
		}
		log.Infof("Kafka consumer initialized with brokers: %v, group: %s", cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup)
	}

	// 6. 充电桩管理器与首次发现
	manager := chargepoint.NewManager(client, cache.NewStateCache(), managerConfig, log, opts...)
	if err := manager.Discover(ctx); err != nil {
		log.Fatalf("Failed to discover chargepoints: %v", err)
	}
	log.Infof("Managing chargepoints: %v", manager.ChargePointIDs())

	// 7. 指令分发器
	dispatcher := gateway.NewDispatcher(manager, &gateway.DispatcherConfig{
		Workers:     cfg.Dispatcher.Workers,
		QueueSize:   cfg.Dispatcher.QueueSize,
		EventSource: eventSource,
		ReadOnly:    cfg.ChargeAmps.ReadOnly,
	}, eventProducer, log)
	if err := dispatcher.Start(); err != nil {
		log.Fatalf("Failed to start command dispatcher: %v", err)
	}

	if consumer != nil {
		go func() {
			if err := consumer.Start(dispatcher.HandleCommand); err != nil {
				log.Errorf("Kafka consumer failed: %v", err)
			}
		}()
		log.Info("Kafka consumer starting...")
	}

	// 8. 轮询
	pollDone := make(chan struct{})
	go func() {
		defer close(pollDone)
		if err := manager.Run(ctx); err != nil {
			log.Errorf("Poll loop stopped: %v", err)
		}
	}()

	// 9. HTTP 服务
	metricsServer := newMetricsServer(cfg.GetMetricsAddr(), log)
	if err := metricsServer.Start(); err != nil {
		log.Fatalf("Failed to start metrics server: %v", err)
	}

	var apiServer *server.HTTPServer
	if cfg.Server.Enabled {
		serverConfig := server.DefaultHTTPServerConfig()
		serverConfig.Host = cfg.Server.Host
		serverConfig.Port = cfg.Server.Port
		serverConfig.ReadTimeout = cfg.Server.ReadTimeout
		serverConfig.WriteTimeout = cfg.Server.WriteTimeout
		routes := httpapi.NewServer(manager, dispatcher, cfg.Server.APIToken, log).Routes()
		apiServer = server.NewHTTPServer("api-server", serverConfig, routes, log)
		if err := apiServer.Start(); err != nil {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}

	log.Info("Charge Amps bridge started successfully")

	// 10. 优雅停机
	<-ctx.Done()
	log.Info("Shutting down bridge...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if apiServer != nil {
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Errorf("Error shutting down API server: %v", err)
		}
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Errorf("Error closing Kafka consumer: %v", err)
		}
		log.Info("Kafka consumer closed")
	}
	if err := dispatcher.Stop(); err != nil {
		log.Errorf("Error stopping command dispatcher: %v", err)
	}
	<-pollDone
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("Error closing Kafka producer: %v", err)
		}
		log.Info("Kafka producer closed")
	}
	if snapshots != nil {
		if err := snapshots.Close(); err != nil {
			log.Errorf("Error closing storage: %v", err)
		}
		log.Info("Storage closed")
	}
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		log.Errorf("Error shutting down metrics server: %v", err)
	}

	log.Info("Bridge gracefully stopped.")
	if err := log.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
	}
}

// newMetricsServer 创建监控服务器
func newMetricsServer(addr string, log *logger.Logger) *server.HTTPServer {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		log.Fatalf("Invalid metrics address %s: %v", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		log.Fatalf("Invalid metrics port %s: %v", portStr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.DefaultHTTPServerConfig()
	serverConfig.Host = host
	serverConfig.Port = port
	return server.NewHTTPServer("metrics-server", serverConfig, mux, log)
}
