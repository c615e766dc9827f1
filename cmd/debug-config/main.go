package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charging-platform/chargeamps-bridge/internal/config"
)

// 配置调试工具
// 用于验证配置加载结果，密钥类字段会被遮盖
func main() {
	configPath := flag.String("config", os.Getenv("CHARGEAMPS_CONFIG"), "path to config file")
	flag.Parse()

	fmt.Println("=== Charge Amps Bridge Configuration Test ===")

	// 显示环境变量
	fmt.Println("\n--- Environment Variables ---")
	envVars := []string{
		"CHARGEAMPS_CONFIG",
		"CHARGEAMPS_USERNAME",
		"CHARGEAMPS_URL",
		"CHARGEAMPS_READONLY",
		"CHARGEAMPS_CHARGEPOINT_IDS",
		"CHARGEAMPS_SCAN_INTERVAL",
		"CHARGEAMPS_REDIS_ADDR",
		"CHARGEAMPS_KAFKA_BROKERS",
		"CHARGEAMPS_LOG_LEVEL",
	}
	for _, env := range envVars {
		value := os.Getenv(env)
		if value != "" {
			fmt.Printf("%s = %s\n", env, value)
		} else {
			fmt.Printf("%s = (not set)\n", env)
		}
	}

	// 加载配置
	fmt.Println("\n--- Loading Configuration ---")
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// 显示最终配置
	fmt.Println("\n--- Final Configuration ---")
	fmt.Printf("Username: %s\n", cfg.ChargeAmps.Username)
	fmt.Printf("Password: %s\n", mask(cfg.ChargeAmps.Password))
	fmt.Printf("API Key: %s\n", mask(cfg.ChargeAmps.APIKey))
	fmt.Printf("URL: %s\n", cfg.ChargeAmps.URL)
	fmt.Printf("Read Only: %v\n", cfg.ChargeAmps.ReadOnly)
	fmt.Printf("Chargepoint IDs: %v\n", cfg.ChargeAmps.ChargePointIDs)
	fmt.Printf("Scan Interval: %s\n", cfg.ChargeAmps.ScanInterval)
	fmt.Printf("Request Timeout: %s\n", cfg.ChargeAmps.RequestTimeout)
	fmt.Printf("Default Connector: %d\n", cfg.ChargeAmps.DefaultConnectorID)
	fmt.Printf("Server Enabled: %v (%s)\n", cfg.Server.Enabled, cfg.GetServerAddr())
	fmt.Printf("Server API Token: %s\n", mask(cfg.Server.APIToken))
	fmt.Printf("Redis Enabled: %v (%s, prefix %s, ttl %s)\n", cfg.Redis.Enabled, cfg.Redis.Addr, cfg.Redis.KeyPrefix, cfg.SnapshotTTL())
	fmt.Printf("Kafka Enabled: %v (%v, events %s, commands %s)\n", cfg.Kafka.Enabled, cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.CommandsTopic)
	fmt.Printf("Dispatcher: %d worker(s), queue %d\n", cfg.Dispatcher.Workers, cfg.Dispatcher.QueueSize)
	fmt.Printf("Log Level: %s\n", cfg.Log.Level)
	fmt.Printf("Metrics Address: %s\n", cfg.GetMetricsAddr())

	fmt.Println("\n=== Configuration Test Completed ===")
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 4 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:2] + strings.Repeat("*", len(secret)-2)
}
