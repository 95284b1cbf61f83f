package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// VenueConfig 交易所配置
type VenueConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
}

// WalletConfig 钱包配置
type WalletConfig struct {
	PrivateKey string `yaml:"private_key" json:"private_key"`
}

// RequestConfig 请求层配置
type RequestConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"` // 单次请求超时（秒）
	UseProxy       bool   `yaml:"use_proxy" json:"use_proxy"`
	ProxyFile      string `yaml:"proxy_file" json:"proxy_file"`
	Strategy       string `yaml:"strategy" json:"strategy"` // 请求实现，目前支持 resty
}

// RaceConfig 抢购配置
type RaceConfig struct {
	Concurrency           int `yaml:"concurrency" json:"concurrency"`                         // 并发尝试数
	StaggerMillis         int `yaml:"stagger_ms" json:"stagger_ms"`                           // 第 i 个尝试延迟 i*stagger
	CooldownSeconds       int `yaml:"cooldown_seconds" json:"cooldown_seconds"`               // 上架后冷却期
	FailureBackoffSeconds int `yaml:"failure_backoff_seconds" json:"failure_backoff_seconds"` // 尝试失败后的等待
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// FilterConfig 新上架发现的筛选条件
type FilterConfig struct {
	Name    string                 `yaml:"name" json:"name"`
	Filter  map[string]interface{} `yaml:"filter" json:"filter"` // 原样透传给 explore 接口
	AutoBuy bool                   `yaml:"auto_buy" json:"auto_buy"`
}

// CategoryNo 返回筛选条件里的 categoryNo（0 表示不限）
func (f FilterConfig) CategoryNo() int64 {
	switch v := f.Filter["categoryNo"].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

// SchedulerConfig 定时任务配置
type SchedulerConfig struct {
	Enabled                  bool           `yaml:"enabled" json:"enabled"`
	LoginIntervalSeconds     int            `yaml:"login_interval_seconds" json:"login_interval_seconds"`
	DiscoveryIntervalSeconds int            `yaml:"discovery_interval_seconds" json:"discovery_interval_seconds"`
	MaxResults               int            `yaml:"max_results" json:"max_results"`                         // 单次结果超过该数量视为异常
	SeenTTLMinutes           int            `yaml:"seen_ttl_minutes" json:"seen_ttl_minutes"`               // 已发现上架的去重时长
	ExploreRatePerSecond     float64        `yaml:"explore_rate_per_second" json:"explore_rate_per_second"` // explore 请求速率，0 为不限
	Filters                  []FilterConfig `yaml:"filters" json:"filters"`
}

// StoreConfig 本地存储配置
type StoreConfig struct {
	TokenDir      string `yaml:"token_dir" json:"token_dir"`           // badger 目录，为空则不持久化登录态
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"` // 可选，hex/base64/原始字节，解码后 16/24/32 字节
	JournalPath   string `yaml:"journal_path" json:"journal_path"`     // sqlite 路径，为空则不记录
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // text / json
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days"`
	NoColor    bool   `yaml:"no_color" json:"no_color"`
}

// Config 应用配置
type Config struct {
	Venue               VenueConfig     `yaml:"venue" json:"venue"`
	Wallet              WalletConfig    `yaml:"wallet" json:"wallet"`
	Request             RequestConfig   `yaml:"request" json:"request"`
	Race                RaceConfig      `yaml:"race" json:"race"`
	Server              ServerConfig    `yaml:"server" json:"server"`
	Scheduler           SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Store               StoreConfig     `yaml:"store" json:"store"`
	Log                 LogConfig       `yaml:"log" json:"log"`
	RequireConfirmation bool            `yaml:"require_confirmation" json:"require_confirmation"` // 为 false 时 HTTP 下单默认视为已确认
	MetricsAddr         string          `yaml:"metrics_addr" json:"metrics_addr"`                 // 可选 pprof/expvar 监听地址
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Venue: VenueConfig{BaseURL: "https://msu.io"},
		Request: RequestConfig{
			TimeoutSeconds: 3,
			UseProxy:       true,
			ProxyFile:      "proxies.txt",
			Strategy:       "resty",
		},
		Race: RaceConfig{
			Concurrency:           300,
			StaggerMillis:         10,
			CooldownSeconds:       30,
			FailureBackoffSeconds: 5,
		},
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		Scheduler: SchedulerConfig{
			Enabled:                  true,
			LoginIntervalSeconds:     600,
			DiscoveryIntervalSeconds: 10,
			MaxResults:               50,
			SeenTTLMinutes:           60,
			ExploreRatePerSecond:     2,
		},
		Store: StoreConfig{
			TokenDir:    "data/tokens",
			JournalPath: "data/journal.db",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/msubot.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		RequireConfirmation: true,
	}
}

// Load 加载配置：默认值 -> 配置文件 -> 环境变量
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），覆盖到 cfg 上
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Venue.BaseURL = getEnv("MSU_BASE_URL", c.Venue.BaseURL)
	c.Wallet.PrivateKey = getEnv("PRIVATE_KEY", c.Wallet.PrivateKey)

	c.Request.TimeoutSeconds = parseIntEnv("REQUEST_TIMEOUT", c.Request.TimeoutSeconds)
	c.Request.UseProxy = parseBoolEnv("USE_PROXY", c.Request.UseProxy)
	c.Request.ProxyFile = getEnv("PROXY_FILE", c.Request.ProxyFile)
	c.Request.Strategy = getEnv("REQUEST_STRATEGY", c.Request.Strategy)

	c.Race.Concurrency = parseIntEnv("RACE_CONCURRENCY", c.Race.Concurrency)
	c.Race.StaggerMillis = parseIntEnv("RACE_STAGGER_MS", c.Race.StaggerMillis)
	c.Race.CooldownSeconds = parseIntEnv("RACE_COOLDOWN_SECONDS", c.Race.CooldownSeconds)
	c.Race.FailureBackoffSeconds = parseIntEnv("RACE_FAILURE_BACKOFF_SECONDS", c.Race.FailureBackoffSeconds)

	c.Server.Host = getEnv("HOST", c.Server.Host)
	c.Server.Port = parseIntEnv("PORT", c.Server.Port)

	c.Scheduler.Enabled = parseBoolEnv("SCHEDULER_ENABLED", c.Scheduler.Enabled)
	c.Scheduler.LoginIntervalSeconds = parseIntEnv("LOGIN_INTERVAL_SECONDS", c.Scheduler.LoginIntervalSeconds)
	c.Scheduler.DiscoveryIntervalSeconds = parseIntEnv("DISCOVERY_INTERVAL_SECONDS", c.Scheduler.DiscoveryIntervalSeconds)

	c.Store.TokenDir = getEnv("TOKEN_STORE_DIR", c.Store.TokenDir)
	c.Store.EncryptionKey = getEnv("TOKEN_STORE_KEY", c.Store.EncryptionKey)
	c.Store.JournalPath = getEnv("JOURNAL_PATH", c.Store.JournalPath)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.RequireConfirmation = parseBoolEnv("REQUIRE_CONFIRMATION", c.RequireConfirmation)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Venue.BaseURL == "" {
		return fmt.Errorf("venue.base_url 不能为空")
	}
	if c.Request.TimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT 必须大于 0")
	}
	if c.Request.UseProxy && c.Request.ProxyFile == "" {
		return fmt.Errorf("启用代理时 PROXY_FILE 不能为空")
	}
	if c.Race.Concurrency <= 0 {
		return fmt.Errorf("RACE_CONCURRENCY 必须大于 0")
	}
	if c.Race.StaggerMillis < 0 || c.Race.CooldownSeconds < 0 || c.Race.FailureBackoffSeconds < 0 {
		return fmt.Errorf("race 时间参数不能为负数")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT 无效: %d", c.Server.Port)
	}
	if c.Scheduler.Enabled {
		if c.Scheduler.LoginIntervalSeconds <= 0 {
			return fmt.Errorf("LOGIN_INTERVAL_SECONDS 必须大于 0")
		}
		if c.Scheduler.DiscoveryIntervalSeconds <= 0 {
			return fmt.Errorf("DISCOVERY_INTERVAL_SECONDS 必须大于 0")
		}
		if c.Scheduler.ExploreRatePerSecond < 0 {
			return fmt.Errorf("scheduler.explore_rate_per_second 不能为负数")
		}
		for i, f := range c.Scheduler.Filters {
			if len(f.Filter) == 0 {
				return fmt.Errorf("scheduler.filters[%d] 的 filter 不能为空", i)
			}
		}
	}
	return nil
}

// RequestTimeout 单次请求超时
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Request.TimeoutSeconds) * time.Second
}

// ListenAddr HTTP 监听地址
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseBoolEnv 解析布尔环境变量
func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
