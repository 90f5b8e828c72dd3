// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load 加载配置文件
// 按优先级加载：默认配置 -> 环境配置 -> 环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, "configs/config.yaml", false); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := fmt.Sprintf("configs/config.%s.yaml", env)
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	// 解析配置
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 4. 解析各提供商的编号 API Key
	if err := resolveAPIKeys(&cfg, os.Getenv); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// 执行环境变量替换
	expanded := expandEnv(string(content))

	// 加载到 viper
	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，防止后续 ReadInConfig 报错
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(content string) string {
	re := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([^}]*))?\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		groups := re.FindStringSubmatch(match)
		name := groups[1]
		def := groups[2]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return def
	})
}

// maxNumberedKeys 编号 Key 扫描上限，超出的编号会被忽略
const maxNumberedKeys = 32

// resolveAPIKeys 为每个提供商解析编号 API Key 环境变量。
// <PREFIX>_API_KEY_1..n 依序收集；编号全部缺失时回退到
// 无编号的 <PREFIX>_API_KEY；两者都缺失视为配置错误。
func resolveAPIKeys(cfg *Config, getenv func(string) string) error {
	for name, provider := range cfg.LLM.Providers {
		prefix := strings.TrimSpace(provider.KeyEnvPrefix)
		if prefix == "" {
			prefix = strings.ToUpper(name)
		}

		var keys []string
		for i := 1; i <= maxNumberedKeys; i++ {
			key := strings.TrimSpace(getenv(prefix + "_API_KEY_" + strconv.Itoa(i)))
			if key == "" {
				continue
			}
			keys = append(keys, key)
		}
		if len(keys) == 0 {
			if key := strings.TrimSpace(getenv(prefix + "_API_KEY")); key != "" {
				keys = append(keys, key)
			}
		}
		if len(keys) == 0 {
			return fmt.Errorf("no api key configured for provider %s (env prefix %s)", name, prefix)
		}

		provider.APIKeys = keys
		cfg.LLM.Providers[name] = provider
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ppt-gen-api")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.http.host", "0.0.0.0")
	v.SetDefault("server.http.port", 8080)
	v.SetDefault("server.http.read_timeout", "30s")
	v.SetDefault("server.http.write_timeout", "300s")
	v.SetDefault("server.http.idle_timeout", "120s")

	v.SetDefault("pipeline.max_pages", 25)
	v.SetDefault("pipeline.min_target_pages", 3)
	v.SetDefault("pipeline.min_segment_chars", 300)
	v.SetDefault("pipeline.max_concurrent", 3)
	v.SetDefault("pipeline.batch_size", 5)
	v.SetDefault("pipeline.inter_batch_delay", "2s")

	v.SetDefault("templates.dir", "templates/library")
	v.SetDefault("templates.scan_cache_ttl", "5m")
	v.SetDefault("templates.output_dir", "output/pages")

	v.SetDefault("merge.timeout", "120s")

	v.SetDefault("cache.redis.host", "localhost")
	v.SetDefault("cache.redis.port", 6379)
	v.SetDefault("cache.redis.pool_size", 10)

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 20)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", "1h")
	v.SetDefault("database.postgres.conn_max_idle_time", "30m")

	v.SetDefault("messaging.redis_stream.max_len", 100000)
	v.SetDefault("messaging.redis_stream.block_timeout", "5s")
	v.SetDefault("messaging.redis_stream.retry_limit", 3)
	v.SetDefault("messaging.redis_stream.retry_backoff.initial", "1s")
	v.SetDefault("messaging.redis_stream.retry_backoff.max", "30s")
	v.SetDefault("messaging.redis_stream.retry_backoff.multiplier", 2.0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.metrics.enabled", true)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.sample_rate", 0.1)

	v.SetDefault("security.rate_limit.enabled", false)
	v.SetDefault("security.rate_limit.requests", 10)
	v.SetDefault("security.rate_limit.window", "1m")
}
