// Package config loads the process configuration from the environment. The
// resulting value is read-only after startup and shared by all calls.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/agentplexus/voicebridge/agent"
)

// Config is the bridge process configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// PublicHost is the externally reachable host Twilio connects to for
	// media streaming, without scheme (e.g. "bridge.example.com").
	PublicHost string

	// AgentURL is the realtime agent WebSocket URL.
	AgentURL string

	// AgentAPIKey is the bearer token for the agent endpoint.
	AgentAPIKey string

	// Voice is the agent voice selection.
	Voice string

	// Instructions is the agent's behavioral prompt.
	Instructions string

	// OutputFormat is the agent output encoding ("pcm16" or "g711_ulaw").
	OutputFormat string

	// OutboundTrack optionally tags outbound media frames.
	OutboundTrack string

	// FillerTone switches the fallback pump from silence to a test tone.
	FillerTone bool

	// TwilioAccountSID and TwilioAuthToken enable REST call control;
	// optional, the bridge runs without them.
	TwilioAccountSID string
	TwilioAuthToken  string
}

// Load reads the configuration from the environment, honoring a local .env
// file when present.
func Load() (*Config, error) {
	// A missing .env file is not an error; deployed environments set
	// variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		PublicHost:       os.Getenv("PUBLIC_HOST"),
		AgentURL:         os.Getenv("AGENT_URL"),
		AgentAPIKey:      os.Getenv("AGENT_API_KEY"),
		Voice:            getEnv("AGENT_VOICE", "verse"),
		Instructions:     getEnv("AGENT_INSTRUCTIONS", defaultInstructions),
		OutputFormat:     getEnv("AGENT_OUTPUT_FORMAT", agent.FormatPCM16),
		OutboundTrack:    os.Getenv("OUTBOUND_TRACK"),
		FillerTone:       getEnv("FILLER_TONE", "false") == "true",
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var missing []string
	if c.AgentURL == "" {
		missing = append(missing, "AGENT_URL")
	}
	if c.AgentAPIKey == "" {
		missing = append(missing, "AGENT_API_KEY")
	}
	if c.PublicHost == "" {
		missing = append(missing, "PUBLIC_HOST")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.OutputFormat {
	case agent.FormatPCM16, agent.FormatG711Ulaw:
	default:
		return fmt.Errorf("AGENT_OUTPUT_FORMAT must be %q or %q, got %q",
			agent.FormatPCM16, agent.FormatG711Ulaw, c.OutputFormat)
	}

	return nil
}

// StreamURL is the WebSocket endpoint advertised to Twilio in the call
// setup document.
func (c *Config) StreamURL() string {
	return "wss://" + c.PublicHost + "/media-stream"
}

// RESTEnabled reports whether Twilio REST call control is configured.
func (c *Config) RESTEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

const defaultInstructions = `You are a helpful voice assistant on a phone call.
Keep responses brief and conversational. Speak naturally and be concise.`

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
