package bridge

import (
	"time"

	"github.com/agentplexus/voicebridge"
	"github.com/agentplexus/voicebridge/agent"
)

// Config is the per-process bridge configuration, read-only after startup
// and shared by all calls.
type Config struct {
	// Voice is the agent voice selection.
	Voice string

	// Instructions is the agent's behavioral prompt.
	Instructions string

	// OutputFormat is the agent output encoding: agent.FormatPCM16 (the
	// bridge resamples and compands) or agent.FormatG711Ulaw (passthrough,
	// re-packetization only).
	OutputFormat string

	// Modalities requested on each generation.
	Modalities []string

	// CommitThresholdSamples is the minimum appended 16kHz sample count
	// before a commit+generation is requested. 1600 samples is 100ms.
	CommitThresholdSamples int

	// FillerInterval is the fallback-audio pump period.
	FillerInterval time.Duration

	// FillerTone emits a 440Hz test tone instead of silence, for
	// diagnostic builds.
	FillerTone bool

	// HeartbeatInterval is the period of the mark/ping idle-timeout guard.
	HeartbeatInterval time.Duration

	// OutboundTrack optionally tags outbound media frames.
	OutboundTrack string
}

func (c *Config) applyDefaults() {
	if c.OutputFormat == "" {
		c.OutputFormat = agent.FormatPCM16
	}
	if len(c.Modalities) == 0 {
		c.Modalities = []string{"audio", "text"}
	}
	if c.CommitThresholdSamples <= 0 {
		c.CommitThresholdSamples = 1600
	}
	if c.FillerInterval <= 0 {
		c.FillerInterval = 40 * time.Millisecond
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
}

// fillerFrameBytes is the outbound telephony frame size: 20ms of μ-law at
// 8kHz.
func (c *Config) fillerFrameBytes() int {
	return voicebridge.TelephonyFrameBytes
}
