package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/adiga-code/numerology/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("NUMEROLOGY_TEST_SECRET", "from-env")

	yamlContent := `
telegram:
  bot_token: "test_token"
database:
  path: "test.db"
bot:
  review_delay: 90m
tariffs:
  pair:
    price: 2500
    stars: 180
generation:
  providers: [workflow]
  secret_token: "${NUMEROLOGY_TEST_SECRET}"
  workflow:
    webhook_url: "http://localhost:5678/webhook/numerology"
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test_token", cfg.Telegram.BotToken)
	assert.Equal(t, "from-env", cfg.Generation.SecretToken)
	assert.Equal(t, 90*time.Minute, cfg.Bot.ReviewDelay)
	assert.Equal(t, int64(2500), cfg.Tariffs["pair"].Price)
	assert.Equal(t, 180, cfg.Tariffs["pair"].Stars)

	// defaults
	assert.Equal(t, 24*time.Hour, cfg.Bot.SessionTTL)
	assert.Equal(t, 3*time.Minute, cfg.Generation.SyncTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Generation.StaleAfter)
	assert.Equal(t, 10, cfg.Bot.HistoryLimit)
	assert.Equal(t, 8080, cfg.API.HTTP.Port)
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		return Config{
			Telegram: TelegramConfig{BotToken: "token"},
			Database: DatabaseConfig{Path: "path"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.BotToken = "" }, wantErr: true},
		{name: "placeholder token", mutate: func(c *Config) { c.Telegram.BotToken = "YOUR_BOT_TOKEN_HERE" }, wantErr: true},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.Generation.Providers = []string{"magic"} }, wantErr: true},
		{name: "workflow without url", mutate: func(c *Config) { c.Generation.Providers = []string{ProviderWorkflow} }, wantErr: true},
		{
			name: "llm configured",
			mutate: func(c *Config) {
				c.Generation.Providers = []string{ProviderLLM}
				c.Generation.LLM = LLMConfig{BaseURL: "http://llm", APIKey: "k"}
			},
		},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Generation.Providers = []string{ProviderKafka} }, wantErr: true},
		{
			name: "kafka results without secret",
			mutate: func(c *Config) {
				c.Generation.Providers = []string{ProviderKafka}
				c.Generation.Kafka = KafkaConfig{Brokers: "kafka:9092", RequestTopic: "req", ResultTopic: "res"}
			},
			wantErr: true,
		},
		{name: "gateway without shop", mutate: func(c *Config) { c.Payments.Gateway.Enabled = true }, wantErr: true},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage.S3 = S3Config{Enabled: true, Host: "minio:9000"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKafkaGetBrokers(t *testing.T) {
	k := KafkaConfig{Brokers: " kafka-1:9092, ,kafka-2:9092"}
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, k.GetBrokers())
	assert.Empty(t, KafkaConfig{}.GetBrokers())
}

func TestValidateTariffs(t *testing.T) {
	assert.NoError(t, ValidateTariffs(models.DefaultCatalog().All()))
	assert.Error(t, ValidateTariffs(nil))

	dup := []models.TariffInfo{
		{Code: models.TariffQuick, Price: 100, MinParticipants: 1, MaxParticipants: 1},
		{Code: models.TariffQuick, Price: 200, MinParticipants: 1, MaxParticipants: 1},
	}
	assert.ErrorContains(t, ValidateTariffs(dup), "duplicate")

	badRange := []models.TariffInfo{{Code: models.TariffFamily, Price: 100, MinParticipants: 3, MaxParticipants: 2}}
	assert.ErrorContains(t, ValidateTariffs(badRange), "participant range")

	free := []models.TariffInfo{{Code: models.TariffDeep, MinParticipants: 1, MaxParticipants: 1}}
	assert.ErrorContains(t, ValidateTariffs(free), "price")
}
