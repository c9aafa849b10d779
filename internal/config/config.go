package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Bot        BotConfig        `yaml:"bot"`
	Tariffs    TariffsConfig    `yaml:"tariffs"`
	Generation GenerationConfig `yaml:"generation"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Storage    StorageConfig    `yaml:"storage"`
	Report     ReportConfig     `yaml:"report"`
	Alerts     AlertsConfig     `yaml:"alerts"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Debug    bool   `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BotConfig struct {
	Managers          []int64       `yaml:"managers"`
	Blacklist         []int64       `yaml:"blacklist"`
	SupportContact    string        `yaml:"support_contact"`
	RateLimitMessages int           `yaml:"rate_limit_messages"`
	RateLimitWindow   int           `yaml:"rate_limit_window"`
	SessionTTL        time.Duration `yaml:"session_ttl"`
	ReviewDelay       time.Duration `yaml:"review_delay"`
	HistoryLimit      int           `yaml:"history_limit"`
	ExportPath        string        `yaml:"export_path"`
}

// TariffsConfig переопределяет цены каталога. Ключ - код тарифа.
type TariffsConfig map[string]TariffOverride

type TariffOverride struct {
	Price int64 `yaml:"price"`
	Stars int   `yaml:"stars"`
}

type GenerationConfig struct {
	Providers   []string       `yaml:"providers"`
	CallbackURL string         `yaml:"callback_url"`
	SecretToken string         `yaml:"secret_token"`
	SyncTimeout time.Duration  `yaml:"sync_timeout"`
	StaleAfter  time.Duration  `yaml:"stale_after"`
	Workflow    WorkflowConfig `yaml:"workflow"`
	LLM         LLMConfig      `yaml:"llm"`
	Kafka       KafkaConfig    `yaml:"kafka"`
}

type WorkflowConfig struct {
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type KafkaConfig struct {
	Brokers          string `yaml:"brokers"`
	RequestTopic     string `yaml:"request_topic"`
	ResultTopic      string `yaml:"result_topic"`
	ConsumerGroup    string `yaml:"consumer_group"`
	SecurityProtocol string `yaml:"security_protocol"`
	SASLMechanism    string `yaml:"sasl_mechanism"`
	SASLUsername     string `yaml:"sasl_username"`
	SASLPassword     string `yaml:"sasl_password"`
}

// GetBrokers возвращает список брокеров из строки через запятую.
func (k KafkaConfig) GetBrokers() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type PaymentsConfig struct {
	StarsEnabled bool          `yaml:"stars_enabled"`
	Gateway      GatewayConfig `yaml:"gateway"`
}

type GatewayConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	ShopID        string        `yaml:"shop_id"`
	SecretKey     string        `yaml:"secret_key"`
	WebhookSecret string        `yaml:"webhook_secret"`
	ReturnURL     string        `yaml:"return_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

type StorageConfig struct {
	ArtifactDir string   `yaml:"artifact_dir"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type ReportConfig struct {
	Title    string `yaml:"title"`
	FontPath string `yaml:"font_path"`
}

type AlertsConfig struct {
	OperatorChatID int64 `yaml:"operator_chat_id"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен, переменные могут прийти из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	for _, name := range c.Generation.Providers {
		switch name {
		case ProviderWorkflow:
			if c.Generation.Workflow.WebhookURL == "" {
				return errors.New("generation.workflow.webhook_url is required for workflow provider")
			}
		case ProviderLLM:
			if c.Generation.LLM.BaseURL == "" || c.Generation.LLM.APIKey == "" {
				return errors.New("generation.llm.base_url and api_key are required for llm provider")
			}
		case ProviderKafka:
			if len(c.Generation.Kafka.GetBrokers()) == 0 || c.Generation.Kafka.RequestTopic == "" {
				return errors.New("generation.kafka.brokers and request_topic are required for kafka provider")
			}
			if c.Generation.Kafka.ResultTopic != "" && c.Generation.SecretToken == "" {
				return errors.New("generation.secret_token is required to consume kafka results")
			}
		default:
			return fmt.Errorf("unknown generation provider %q", name)
		}
	}

	if c.Payments.Gateway.Enabled && (c.Payments.Gateway.ShopID == "" || c.Payments.Gateway.SecretKey == "") {
		return errors.New("payments.gateway requires shop_id and secret_key")
	}

	if c.Storage.S3.Enabled && (c.Storage.S3.Host == "" || c.Storage.S3.Bucket == "") {
		return errors.New("storage.s3 requires host and bucket")
	}

	return nil
}

// ValidateTariffs checks a tariff list loaded from tariffs.yaml.
func ValidateTariffs(tariffs []models.TariffInfo) error {
	if len(tariffs) == 0 {
		return errors.New("tariff list is empty")
	}
	codes := make(map[models.Tariff]bool)
	for _, t := range tariffs {
		if t.Code == "" {
			return fmt.Errorf("tariff '%s' has empty code", t.Title)
		}
		if codes[t.Code] {
			return fmt.Errorf("duplicate tariff code found: %s", t.Code)
		}
		codes[t.Code] = true
		if t.Price <= 0 {
			return fmt.Errorf("tariff %s has invalid price %d", t.Code, t.Price)
		}
		if t.MinParticipants < 1 || t.MaxParticipants < t.MinParticipants {
			return fmt.Errorf("tariff %s has invalid participant range %d-%d", t.Code, t.MinParticipants, t.MaxParticipants)
		}
	}
	return nil
}

const (
	ProviderWorkflow = "workflow"
	ProviderLLM      = "llm"
	ProviderKafka    = "kafka"
)

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Bot defaults
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = 20
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = 60
	}
	if c.Bot.SessionTTL == 0 {
		c.Bot.SessionTTL = 24 * time.Hour
	}
	if c.Bot.ReviewDelay == 0 {
		c.Bot.ReviewDelay = time.Hour
	}
	if c.Bot.HistoryLimit == 0 {
		c.Bot.HistoryLimit = 10
	}
	if c.Bot.ExportPath == "" {
		c.Bot.ExportPath = "data/exports"
	}

	// Generation defaults
	if c.Generation.SyncTimeout == 0 {
		c.Generation.SyncTimeout = 3 * time.Minute
	}
	if c.Generation.StaleAfter == 0 {
		c.Generation.StaleAfter = 30 * time.Minute
	}
	if c.Generation.Workflow.Timeout == 0 {
		c.Generation.Workflow.Timeout = 30 * time.Second
	}
	if c.Generation.LLM.Model == "" {
		c.Generation.LLM.Model = "gpt-4"
	}
	if c.Generation.LLM.MaxTokens == 0 {
		c.Generation.LLM.MaxTokens = 4000
	}
	if c.Generation.LLM.Temperature == 0 {
		c.Generation.LLM.Temperature = 0.7
	}
	if c.Generation.Kafka.ConsumerGroup == "" {
		c.Generation.Kafka.ConsumerGroup = "numerology-results"
	}

	if c.Payments.Gateway.BaseURL == "" {
		c.Payments.Gateway.BaseURL = "https://api.yookassa.ru"
	}
	if c.Payments.Gateway.Timeout == 0 {
		c.Payments.Gateway.Timeout = 15 * time.Second
	}

	if c.Storage.ArtifactDir == "" {
		c.Storage.ArtifactDir = "data/reports"
	}
	if c.Report.Title == "" {
		c.Report.Title = "Нумерологический отчёт"
	}

	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
}
