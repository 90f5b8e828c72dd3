// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Templates     TemplatesConfig     `yaml:"templates" mapstructure:"templates"`
	Merge         MergeConfig         `yaml:"merge" mapstructure:"merge"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// ProviderKind LLM 端点协议类型
type ProviderKind string

const (
	// ProviderKindChat OpenAI 兼容 chat/completions 端点
	ProviderKindChat ProviderKind = "chat"
	// ProviderKindWorkflow Dify 风格 workflow 会话端点（SSE 流式）
	ProviderKindWorkflow ProviderKind = "workflow"
)

// PollStrategy API Key 轮询策略
type PollStrategy string

const (
	StrategyRoundRobin  PollStrategy = "round_robin"
	StrategyHealthBased PollStrategy = "health_based"
)

// LLMConfig LLM 配置
type LLMConfig struct {
	// DefaultProvider 默认分页/内容分配提供商
	DefaultProvider string `yaml:"default_provider" mapstructure:"default_provider"`
	// MatchProvider 模板推荐提供商（缺省时使用 DefaultProvider）
	MatchProvider string                    `yaml:"match_provider" mapstructure:"match_provider"`
	Providers     map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig 单个 LLM 提供商配置
type ProviderConfig struct {
	Kind        ProviderKind  `yaml:"kind" mapstructure:"kind"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Stream      bool          `yaml:"stream" mapstructure:"stream"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries  int           `yaml:"max_retries" mapstructure:"max_retries"`

	// KeyEnvPrefix 编号 API Key 环境变量前缀，如 DIFY 对应
	// DIFY_API_KEY_1..n；全部缺失时回退到无编号的 DIFY_API_KEY
	KeyEnvPrefix string `yaml:"key_env_prefix" mapstructure:"key_env_prefix"`
	// APIKeys 由 loader 根据 KeyEnvPrefix 解析注入，不从文件读取
	APIKeys []string `yaml:"-" mapstructure:"-"`

	Strategy               PollStrategy  `yaml:"strategy" mapstructure:"strategy"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" mapstructure:"max_consecutive_failures"`
	RecoveryWindow         time.Duration `yaml:"recovery_window" mapstructure:"recovery_window"`
}

// PipelineConfig 生成流水线配置
type PipelineConfig struct {
	// MaxPages 总页数硬上限（含机械追加的结束页）
	MaxPages int `yaml:"max_pages" mapstructure:"max_pages"`
	// MinTargetPages 手动指定页数时的下限（标题+结束+至少一页内容）
	MinTargetPages int `yaml:"min_target_pages" mapstructure:"min_target_pages"`
	// MinSegmentChars 合并页面时单页原文片段最少字符数
	MinSegmentChars int `yaml:"min_segment_chars" mapstructure:"min_segment_chars"`
	// MaxConcurrent 页级并发上限
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	// BatchSize 模板匹配批大小
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// InterBatchDelay 批间延迟
	InterBatchDelay time.Duration `yaml:"inter_batch_delay" mapstructure:"inter_batch_delay"`
}

// TemplatesConfig 模板库配置
type TemplatesConfig struct {
	// Dir 模板文件目录
	Dir string `yaml:"dir" mapstructure:"dir"`
	// ScanCacheTTL 目录扫描结果缓存时长
	ScanCacheTTL time.Duration `yaml:"scan_cache_ttl" mapstructure:"scan_cache_ttl"`
	// OutputDir 单页填充结果输出目录
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// MergeConfig 合并服务配置
type MergeConfig struct {
	// ServiceURL 外部合并服务地址
	ServiceURL string        `yaml:"service_url" mapstructure:"service_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	MaxLen       int64         `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	RetryLimit   int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// RateLimitConfig API 限流配置
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
}

// Provider 返回指定名称的提供商配置
func (c *LLMConfig) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}
