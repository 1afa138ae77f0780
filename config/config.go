package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// OpenAI-Einstellungen für die Extraction-Engine. Alle Call-Settings
	// sind explizit konfiguriert und werden dem Extractor bei der
	// Konstruktion übergeben.
	OpenAIAPIKey      string  `envconfig:"OPENAI_API_KEY"`
	OpenAIModel       string  `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	OpenAITemperature float64 `envconfig:"OPENAI_TEMPERATURE" default:"0.2"`
	OpenAIMaxTokens   int     `envconfig:"OPENAI_MAX_TOKENS" default:"2048"`

	// "update" oder "discovery"; discovery extrahiert konservativer.
	ExtractionProfile string `envconfig:"EXTRACTION_PROFILE" default:"update"`

	// Mail-Provider
	GmailBaseURL     string `envconfig:"GMAIL_BASE_URL" default:"https://gmail.googleapis.com/gmail/v1"`
	GmailAccessToken string `envconfig:"GMAIL_ACCESS_TOKEN"`
	GraphBaseURL     string `envconfig:"GRAPH_BASE_URL" default:"https://graph.microsoft.com/v1.0"`
	GraphAccessToken string `envconfig:"GRAPH_ACCESS_TOKEN"`
	InboxBatchSize   int    `envconfig:"INBOX_BATCH_SIZE" default:"20"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"*/15 * * * *"`

	// Dedup-Ledger: ältere Einträge fallen aus dem Lookup-Fenster heraus,
	// werden aber nie gelöscht.
	DedupRetentionDays int `envconfig:"DEDUP_RETENTION_DAYS" default:"90"`

	ImportBatchSize int `envconfig:"IMPORT_BATCH_SIZE" default:"50"`

	StratoS3Key    string `envconfig:"STRATO_S3_KEY"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET"`

	// Provider-Konfiguration
	EnabledProviders string `envconfig:"ENABLED_PROVIDERS" default:"gmail"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
