// Package bot implements an automated chat participant that joins the hub
// like any browser client and answers with a local language model.
package bot

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Supported completion backends.
const (
	APILMStudio = "lmstudio"
	APIOllama   = "ollama"
)

// Config is read from the environment. Keys match the ones operators already
// keep in their .env files.
type Config struct {
	APIType   string `envconfig:"AI_API_TYPE" default:"ollama"`
	APIURL    string `envconfig:"AI_API_URL" default:"http://localhost:11434/v1/chat/completions" validate:"required,url"`
	Model     string `envconfig:"AI_MODEL" default:"qwen3:8b"`
	FullName  string `envconfig:"AI_FULL_NAME" default:"LanAI Bot"`
	ServerURL string `envconfig:"AI_SERVER_URL" default:"ws://localhost:8080/ws" validate:"required,url"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	AppEnv    string `envconfig:"APP_ENV" default:"dev"`

	ResponseProbability float64 `envconfig:"AI_RESPONSE_PROBABILITY" default:"0.1" validate:"gte=0,lte=1"`
	TriviaProbability   float64 `envconfig:"AI_TRIVIA_PROBABILITY" default:"0.1" validate:"gte=0,lte=1"`

	OllamaRetries   int           `envconfig:"OLLAMA_RETRIES" default:"10" validate:"gt=0"`
	OllamaRetryWait time.Duration `envconfig:"OLLAMA_RETRY_WAIT" default:"5s" validate:"gte=0"`
	ReconnectWait   time.Duration `envconfig:"AI_RECONNECT_WAIT" default:"5s" validate:"gt=0"`
}

var validate = validator.New()

// LoadConfig reads and validates the bot configuration.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("reading bot environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid bot configuration: %w", err)
	}
	return cfg, nil
}
