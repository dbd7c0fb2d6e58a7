package gate

import "fmt"

// Config holds the hysteresis settings, in frames.
type Config struct {
	MinStart           int // consecutive speech frames before Start
	Hangover           int // consecutive non-speech frames before End
	PrePad             int // idle frames kept ahead of the onset
	MinSpeechFrames    int // fewer speech frames than this is a misfire
	MaxUtteranceFrames int

	// Classifier settings.
	Aggressiveness int     // webrtcvad mode 0-3
	RMSThreshold   float64 // fallback when webrtcvad cannot take the frame
}

// Profile returns tuned settings for 20 ms frames.
func Profile(name string) (Config, error) {
	switch name {
	case "", "desktop":
		return Config{
			MinStart:           3,
			Hangover:           25,
			PrePad:             10,
			MinSpeechFrames:    10,
			MaxUtteranceFrames: 1500,
			Aggressiveness:     2,
			RMSThreshold:       500,
		}, nil
	case "mobile":
		// Phone microphones pick up more handling noise and echo.
		return Config{
			MinStart:           5,
			Hangover:           35,
			PrePad:             15,
			MinSpeechFrames:    15,
			MaxUtteranceFrames: 1500,
			Aggressiveness:     3,
			RMSThreshold:       900,
		}, nil
	default:
		return Config{}, fmt.Errorf("gate: unknown profile %q", name)
	}
}

func (c Config) withDefaults() Config {
	if c.MinStart < 1 {
		c.MinStart = 1
	}
	if c.Hangover < 1 {
		c.Hangover = 1
	}
	if c.PrePad < 0 {
		c.PrePad = 0
	}
	if c.MaxUtteranceFrames <= 0 {
		c.MaxUtteranceFrames = 1500
	}
	return c
}
