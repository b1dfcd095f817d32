package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config contains all runtime settings for the voice chat service.
type Config struct {
	BindAddr                 string        `envconfig:"APP_BIND_ADDR" default:":8080"`
	ShutdownTimeout          time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	SessionInactivityTimeout time.Duration `envconfig:"APP_SESSION_INACTIVITY_TIMEOUT" default:"10m"`
	MetricsNamespace         string        `envconfig:"APP_METRICS_NAMESPACE" default:"ollavoice"`
	AllowAnyOrigin           bool          `envconfig:"APP_ALLOW_ANY_ORIGIN" default:"false"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"false"`

	// Optional YAML file merged over the embedded locale catalog.
	LocaleFile  string `envconfig:"LOCALE_FILE" default:""`
	DefaultLang string `envconfig:"DEFAULT_LANG" default:"fr"`

	// ollama | openai | mock
	LLMProvider   string `envconfig:"LLM_PROVIDER" default:"ollama"`
	OllamaURL     string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	DefaultModel  string `envconfig:"LLM_MODEL" default:"llama3.1:8b"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`

	// gtts | openai | mock
	TTSProvider    string  `envconfig:"TTS_PROVIDER" default:"gtts"`
	GTTSURL        string  `envconfig:"GTTS_URL" default:"https://translate.google.com/translate_tts"`
	OpenAITTSModel string  `envconfig:"OPENAI_TTS_MODEL" default:"tts-1"`
	OpenAITTSVoice string  `envconfig:"OPENAI_TTS_VOICE" default:"alloy"`
	TTSTempo       float64 `envconfig:"TTS_TEMPO" default:"1.5"`

	// deepgram | openai | whisper-server | mock
	STTProvider      string `envconfig:"STT_PROVIDER" default:"deepgram"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	OpenAISTTModel   string `envconfig:"OPENAI_STT_MODEL" default:"whisper-1"`
	WhisperServerURL string `envconfig:"WHISPER_SERVER_URL" default:"http://127.0.0.1:8081/inference"`

	FFmpegPath    string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	AudioPipeMode bool   `envconfig:"AUDIO_PIPE_MODE" default:"true"`
	// Parent of the per-call working dirs; empty means os.TempDir().
	AudioTempRoot  string `envconfig:"AUDIO_TEMP_ROOT" default:""`
	AudioQueueSize int    `envconfig:"AUDIO_QUEUE_SIZE" default:"16"`

	// newline | sentence
	StreamDelimiter string `envconfig:"STREAM_DELIMITER" default:"newline"`
	// discard | flush
	StreamInterruptPolicy string `envconfig:"STREAM_INTERRUPT_POLICY" default:"discard"`
	ConversationLimit     int    `envconfig:"CONVERSATION_LIMIT" default:"10"`
}

// Load reads an optional .env file, then the environment, and validates the result.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv skips the .env file.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.TTSProvider = strings.ToLower(strings.TrimSpace(c.TTSProvider))
	c.STTProvider = strings.ToLower(strings.TrimSpace(c.STTProvider))
	c.StreamDelimiter = strings.ToLower(strings.TrimSpace(c.StreamDelimiter))
	c.StreamInterruptPolicy = strings.ToLower(strings.TrimSpace(c.StreamInterruptPolicy))
	c.DefaultLang = strings.ToLower(strings.TrimSpace(c.DefaultLang))
	c.OllamaURL = strings.TrimRight(strings.TrimSpace(c.OllamaURL), "/")
	c.DefaultModel = strings.TrimSpace(c.DefaultModel)
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("APP_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.DefaultModel == "" {
		return fmt.Errorf("LLM_MODEL is required")
	}
	if err := oneOf("LLM_PROVIDER", c.LLMProvider, "ollama", "openai", "mock"); err != nil {
		return err
	}
	if err := oneOf("TTS_PROVIDER", c.TTSProvider, "gtts", "openai", "mock"); err != nil {
		return err
	}
	if err := oneOf("STT_PROVIDER", c.STTProvider, "deepgram", "openai", "whisper-server", "mock"); err != nil {
		return err
	}
	if err := oneOf("STREAM_DELIMITER", c.StreamDelimiter, "newline", "sentence"); err != nil {
		return err
	}
	if err := oneOf("STREAM_INTERRUPT_POLICY", c.StreamInterruptPolicy, "discard", "flush"); err != nil {
		return err
	}
	if err := oneOf("DEFAULT_LANG", c.DefaultLang, "fr", "en"); err != nil {
		return err
	}
	if c.STTProvider == "deepgram" && strings.TrimSpace(c.DeepgramAPIKey) == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER=deepgram")
	}
	if c.TTSTempo < 0.5 || c.TTSTempo > 2.0 {
		// atempo accepts 0.5..2.0 in a single filter stage.
		return fmt.Errorf("TTS_TEMPO must be between 0.5 and 2.0")
	}
	if c.AudioQueueSize <= 0 {
		return fmt.Errorf("AUDIO_QUEUE_SIZE must be positive")
	}
	if c.ConversationLimit < 2 {
		return fmt.Errorf("CONVERSATION_LIMIT must be at least 2")
	}
	return nil
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, "|"), v)
}
