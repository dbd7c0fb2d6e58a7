package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"chorus/agent/internal/types"
)

type Config struct {
	Server struct {
		Port      string
		GRPCPort  string
		LogLevel  string
		LogFormat string
	}
	Storage struct {
		Dir       string
		Retention int
	}
	Scheduler struct {
		Mode             string // "round-robin" | "single"
		ActiveID         string
		MaxHistoryLength int
		MaxTotalChars    int
		AutoDrain        bool
	}
	Deepgram struct {
		APIKey   string
		Model    string
		Language string
		BaseURL  string
	}
	LLM struct {
		Provider    string // "openai" | "gemini"
		BaseURL     string
		APIKey      string
		Model       string
		MaxTokens   int
		Temperature float64
		// AzureAPIVersion switches the openai provider to Azure deployment
		// routing when set.
		AzureAPIVersion string
	}
	Eleven struct {
		APIKey  string
		ModelID string
		BaseURL string
	}
	Feed struct {
		Secret    string // signs /ws/feed tokens; empty leaves the feed open
		MaxEvents int
	}
	Gate struct {
		Profile string // "desktop" | "mobile"
	}
	Client struct {
		ServerURL       string
		BootstrapID     string
		InputRate       int
		OutputRate      int
		FramesPerBuffer int
	}
	Personalities []types.Personality
}

// Load reads configuration from the environment and an optional chorus.yaml
// (searched in the working directory and /etc/chorus). The personality list
// only comes from the file; built-in defaults apply when it is absent.
func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("config_file", "CHORUS_CONFIG")
	v.SetConfigName("chorus")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/chorus")
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			log.Warn().Err(err).Msg("config file unreadable, using env and defaults")
		}
	}

	// Defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.grpc_port", 3001)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "console")

	v.SetDefault("storage.dir", "./data")
	v.SetDefault("storage.retention", 5)

	v.SetDefault("scheduler.mode", "round-robin")
	v.SetDefault("scheduler.max_history_length", 10)
	v.SetDefault("scheduler.max_total_chars", 4000)
	v.SetDefault("scheduler.auto_drain", false)

	v.SetDefault("deepgram.model", "nova-2")
	v.SetDefault("deepgram.language", "en")
	v.SetDefault("deepgram.base_url", "https://api.deepgram.com/v1/listen")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.temperature", 0.8)

	v.SetDefault("elevenlabs.model_id", "eleven_turbo_v2_5")
	v.SetDefault("elevenlabs.base_url", "https://api.elevenlabs.io")

	v.SetDefault("feed.max_events", 200)

	v.SetDefault("gate.profile", "desktop")

	v.SetDefault("client.server_url", "http://localhost:3000")
	v.SetDefault("client.bootstrap_id", "narrator")
	v.SetDefault("client.input_rate", 16000)
	v.SetDefault("client.output_rate", 48000)
	v.SetDefault("client.frames_per_buffer", 320)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.grpc_port", "GRPC_PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.log_format", "LOG_FORMAT")

	v.BindEnv("storage.dir", "STORAGE_DIR")
	v.BindEnv("storage.retention", "STORAGE_RETENTION")

	v.BindEnv("scheduler.mode", "SCHEDULER_MODE")
	v.BindEnv("scheduler.active_id", "SCHEDULER_ACTIVE_ID")
	v.BindEnv("scheduler.max_history_length", "MAX_HISTORY_LENGTH")
	v.BindEnv("scheduler.max_total_chars", "MAX_TOTAL_CHARS")
	v.BindEnv("scheduler.auto_drain", "SCHEDULER_AUTO_DRAIN")

	v.BindEnv("deepgram.api_key", "DEEPGRAM_API_KEY")
	v.BindEnv("deepgram.model", "DEEPGRAM_MODEL")
	v.BindEnv("deepgram.language", "DEEPGRAM_LANGUAGE")
	v.BindEnv("deepgram.base_url", "DEEPGRAM_BASE_URL")

	v.BindEnv("llm.provider", "LLM_PROVIDER")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("llm.max_tokens", "LLM_MAX_TOKENS")
	v.BindEnv("llm.temperature", "LLM_TEMPERATURE")
	v.BindEnv("llm.azure_api_version", "LLM_AZURE_API_VERSION")

	v.BindEnv("elevenlabs.api_key", "ELEVENLABS_API_KEY")
	v.BindEnv("elevenlabs.model_id", "ELEVENLABS_MODEL_ID")
	v.BindEnv("elevenlabs.base_url", "ELEVENLABS_BASE_URL")

	v.BindEnv("feed.secret", "FEED_SECRET")
	v.BindEnv("feed.max_events", "FEED_MAX_EVENTS")

	v.BindEnv("gate.profile", "GATE_PROFILE")

	v.BindEnv("client.server_url", "CHORUS_SERVER_URL")
	v.BindEnv("client.bootstrap_id", "CHORUS_BOOTSTRAP_ID")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.GRPCPort = toString(v.Get("server.grpc_port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.LogFormat = v.GetString("server.log_format")

	c.Storage.Dir = v.GetString("storage.dir")
	c.Storage.Retention = v.GetInt("storage.retention")

	c.Scheduler.Mode = v.GetString("scheduler.mode")
	c.Scheduler.ActiveID = v.GetString("scheduler.active_id")
	c.Scheduler.MaxHistoryLength = v.GetInt("scheduler.max_history_length")
	c.Scheduler.MaxTotalChars = v.GetInt("scheduler.max_total_chars")
	c.Scheduler.AutoDrain = v.GetBool("scheduler.auto_drain")

	c.Deepgram.APIKey = v.GetString("deepgram.api_key")
	c.Deepgram.Model = v.GetString("deepgram.model")
	c.Deepgram.Language = v.GetString("deepgram.language")
	c.Deepgram.BaseURL = v.GetString("deepgram.base_url")

	c.LLM.Provider = v.GetString("llm.provider")
	c.LLM.BaseURL = v.GetString("llm.base_url")
	c.LLM.APIKey = v.GetString("llm.api_key")
	c.LLM.Model = v.GetString("llm.model")
	c.LLM.MaxTokens = v.GetInt("llm.max_tokens")
	c.LLM.Temperature = v.GetFloat64("llm.temperature")
	c.LLM.AzureAPIVersion = v.GetString("llm.azure_api_version")

	c.Eleven.APIKey = v.GetString("elevenlabs.api_key")
	c.Eleven.ModelID = v.GetString("elevenlabs.model_id")
	c.Eleven.BaseURL = v.GetString("elevenlabs.base_url")

	c.Feed.Secret = v.GetString("feed.secret")
	c.Feed.MaxEvents = v.GetInt("feed.max_events")

	c.Gate.Profile = v.GetString("gate.profile")

	c.Client.ServerURL = v.GetString("client.server_url")
	c.Client.BootstrapID = v.GetString("client.bootstrap_id")
	c.Client.InputRate = v.GetInt("client.input_rate")
	c.Client.OutputRate = v.GetInt("client.output_rate")
	c.Client.FramesPerBuffer = v.GetInt("client.frames_per_buffer")

	if err := v.UnmarshalKey("personalities", &c.Personalities); err != nil {
		log.Warn().Err(err).Msg("personalities in config file are malformed, using defaults")
		c.Personalities = nil
	}
	if len(c.Personalities) == 0 {
		c.Personalities = DefaultPersonalities()
	}

	log.Info().
		Str("port", c.Server.Port).
		Str("scheduler", c.Scheduler.Mode).
		Int("personalities", len(c.Personalities)).
		Str("llm", c.LLM.Provider).
		Msg("config loaded")
	return c
}

// Validate reports configuration that would make the server unusable.
func (c Config) Validate() error {
	if len(c.Personalities) == 0 {
		return errors.New("at least one personality is required")
	}
	seen := make(map[string]bool, len(c.Personalities))
	for _, p := range c.Personalities {
		if p.ID == "" {
			return errors.New("personality id must not be empty")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate personality id %q", p.ID)
		}
		seen[p.ID] = true
	}
	switch c.Scheduler.Mode {
	case "round-robin":
	case "single":
		if c.Scheduler.ActiveID != "" && !seen[c.Scheduler.ActiveID] {
			return fmt.Errorf("scheduler active id %q is not a configured personality", c.Scheduler.ActiveID)
		}
	default:
		return fmt.Errorf("scheduler mode must be 'round-robin' or 'single', got %q", c.Scheduler.Mode)
	}
	if c.Scheduler.MaxHistoryLength <= 0 || c.Scheduler.MaxTotalChars <= 0 {
		return errors.New("history bounds must be positive")
	}
	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm provider must be 'openai' or 'gemini', got %q", c.LLM.Provider)
	}
	return nil
}

// DefaultPersonalities is the built-in cast, placed left, centre and right
// of the listener.
func DefaultPersonalities() []types.Personality {
	return []types.Personality{
		{
			ID:           "sage",
			DisplayName:  "Sage",
			VoiceID:      "pNInz6obpgDQGcFmaJgB",
			Position:     types.Position{X: -2, Y: 0, Z: -1},
			SystemPrompt: "You are Sage, a calm and thoughtful companion. Answer in one or two short spoken sentences.",
		},
		{
			ID:           "spark",
			DisplayName:  "Spark",
			VoiceID:      "EXAVITQu4vr4xnSDxMaL",
			Position:     types.Position{X: 0, Y: 0, Z: -2},
			SystemPrompt: "You are Spark, an upbeat and curious companion. Answer in one or two short spoken sentences.",
		},
		{
			ID:           "grumble",
			DisplayName:  "Grumble",
			VoiceID:      "VR6AewLTigWG4xSOukaG",
			Position:     types.Position{X: 2, Y: 0, Z: -1},
			SystemPrompt: "You are Grumble, a dry and sceptical companion. Answer in one or two short spoken sentences.",
		},
	}
}

func toString(v any) string { return fmt.Sprint(v) }
