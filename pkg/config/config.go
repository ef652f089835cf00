package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Analysis AnalysisConfig
	Pipeline PipelineConfig
	Report   ReportConfig
	Export   ExportConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int
}

type AnalysisConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TimeoutSec  int
	MaxAttempts int
}

type PipelineConfig struct {
	ExpectedStores      string
	Timezone            string
	HistoryDays         int
	FallbackHour        int
	FallbackIntervalMin int
	RunTakeoverMin      int
	RejectedDir         string
}

type ReportConfig struct {
	WebhookURL string
	TimeoutSec int
}

type ExportConfig struct {
	Dir        string
	WindowDays int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (p PipelineConfig) ExpectedStoreList() []string {
	parts := strings.Split(p.ExpectedStores, ",")
	stores := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s != "" {
			stores = append(stores, s)
		}
	}
	return stores
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/salesdata")

	viper.SetEnvPrefix("SALES")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 10485760)

	viper.SetDefault("sqlite.path", "./data/salesdata.db")

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttlSec", 300)

	viper.SetDefault("analysis.model", "gpt-4o-mini")
	viper.SetDefault("analysis.temperature", 0.3)
	viper.SetDefault("analysis.maxTokens", 2048)
	viper.SetDefault("analysis.timeoutSec", 60)
	viper.SetDefault("analysis.maxAttempts", 3)

	viper.SetDefault("pipeline.expectedStores", "0001,0002,0003,0004,0005,0006,0007,0008,0009,0010,0011")
	viper.SetDefault("pipeline.timezone", "America/New_York")
	viper.SetDefault("pipeline.historyDays", 7)
	viper.SetDefault("pipeline.fallbackHour", 23)
	viper.SetDefault("pipeline.fallbackIntervalMin", 15)
	viper.SetDefault("pipeline.runTakeoverMin", 30)
	viper.SetDefault("pipeline.rejectedDir", "./data/rejected")

	viper.SetDefault("report.timeoutSec", 10)

	viper.SetDefault("export.dir", "./data/exports")
	viper.SetDefault("export.windowDays", 30)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
