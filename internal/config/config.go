package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
	Job      JobConfig      `mapstructure:"job"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig 数据库配置
// driver 可选 mysql / postgres / sqlite，sqlite 时只使用 dsn（文件路径）
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Events string `mapstructure:"events"`
}

type AuthConfig struct {
	JWTSecret         string        `mapstructure:"jwt_secret"`
	JWTIssuer         string        `mapstructure:"jwt_issuer"`
	TokenTTL          time.Duration `mapstructure:"token_ttl"`
	LoginRate         string        `mapstructure:"login_rate"`
	BootstrapUsername string        `mapstructure:"bootstrap_username"`
	BootstrapPassword string        `mapstructure:"bootstrap_password"`
}

// BusinessConfig 业务规则
type BusinessConfig struct {
	// 新书入库时零售价 = 进货价 * RetailMarkup
	RetailMarkup      string        `mapstructure:"retail_markup"`
	LowStockThreshold int           `mapstructure:"low_stock_threshold"`
	MaxTrendDays      int           `mapstructure:"max_trend_days"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
}

type JobConfig struct {
	OutboxInterval      time.Duration `mapstructure:"outbox_interval"`
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`
	MaxRetryCount       int           `mapstructure:"max_retry_count"`
	DailySummaryEnabled bool          `mapstructure:"daily_summary_enabled"`
	DailySummaryCron    string        `mapstructure:"daily_summary_cron"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173"})

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.name", "bookstore")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.events", "bookstore.events")

	// 空值默认项也要注册，否则 AutomaticEnv 不会在 Unmarshal 时读取对应环境变量
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "bookstore")
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.login_rate", "10-M")
	v.SetDefault("auth.bootstrap_username", "admin")
	v.SetDefault("auth.bootstrap_password", "")

	v.SetDefault("business.retail_markup", "1.3")
	v.SetDefault("business.low_stock_threshold", 10)
	v.SetDefault("business.max_trend_days", 365)
	v.SetDefault("business.lock_ttl", "30s")

	v.SetDefault("job.outbox_interval", "500ms")
	v.SetDefault("job.outbox_batch_size", 100)
	v.SetDefault("job.max_retry_count", 5)
	v.SetDefault("job.daily_summary_enabled", true)
	v.SetDefault("job.daily_summary_cron", "5 0 * * *")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig 加载配置文件
// 优先级：环境变量（BOOKSTORE_ 前缀）> 配置文件 > 默认值；配置文件不存在时只用默认值
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOOKSTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret 未配置")
	}

	return cfg, nil
}
