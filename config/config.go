package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server       Server
	Database     Database
	Gmail        Gmail
	Auth         Auth
	App          App
	Watch        Watch
	GeminiApiKey string
}

type Server struct {
	Port string
}

type Database struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Gmail holds OAuth credentials for the bot mailbox. The refresh token
// belongs to the bot account, not to any student.
type Gmail struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	BotEmail     string
	PubSubTopic  string
}

type Auth struct {
	// Audience is the OAuth client ID that issued the frontend's ID tokens.
	Audience string
}

type App struct {
	CORSOrigin        string
	PortalURL         string
	ScenarioDir       string
	RubricPath        string
	AttemptStaleAfter time.Duration
}

type Watch struct {
	RenewBuffer  time.Duration
	ClaimTimeout time.Duration
	Duration     time.Duration
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SCENARIO_DIR", "scenarios")
	viper.SetDefault("ATTEMPT_STALE_AFTER", "24h")
	viper.SetDefault("WATCH_RENEW_BUFFER", "24h")
	viper.SetDefault("WATCH_CLAIM_TIMEOUT", "60s")
	viper.SetDefault("WATCH_DURATION", "168h") // Gmail watch expires after 7 days

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")

	config.GeminiApiKey = viper.GetString("GEMINI_API_KEY")

	config.Gmail.ClientID = viper.GetString("GMAIL_CLIENT_ID")
	config.Gmail.ClientSecret = viper.GetString("GMAIL_CLIENT_SECRET")
	config.Gmail.RefreshToken = viper.GetString("GMAIL_REFRESH_TOKEN")
	config.Gmail.BotEmail = viper.GetString("BOT_EMAIL")
	config.Gmail.PubSubTopic = viper.GetString("PUBSUB_TOPIC")

	config.Auth.Audience = viper.GetString("AUTH_AUDIENCE")

	config.App.CORSOrigin = viper.GetString("CORS_ORIGIN")
	config.App.PortalURL = viper.GetString("PORTAL_URL")
	config.App.ScenarioDir = viper.GetString("SCENARIO_DIR")
	config.App.RubricPath = viper.GetString("RUBRIC_PATH")
	config.App.AttemptStaleAfter = viper.GetDuration("ATTEMPT_STALE_AFTER")

	config.Watch.RenewBuffer = viper.GetDuration("WATCH_RENEW_BUFFER")
	config.Watch.ClaimTimeout = viper.GetDuration("WATCH_CLAIM_TIMEOUT")
	config.Watch.Duration = viper.GetDuration("WATCH_DURATION")

	log.Info().Str("port", config.Server.Port).Str("scenarioDir", config.App.ScenarioDir).Msg("Config loaded")
	return &config, nil
}
