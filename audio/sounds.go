package audio

import "strings"

type Sound int

const (
	SoundMessage Sound = iota
	SoundConnect
	SoundAlert
	SoundBell
	SoundError
)

type SoundConfig struct {
	Sound Sound
	Tag   string
	File  string
}

var soundConfigs = map[Sound]SoundConfig{
	SoundMessage: {SoundMessage, "message", "notification.wav"},
	SoundConnect: {SoundConnect, "connect", "success.wav"},
	SoundAlert:   {SoundAlert, "alert", "alert.wav"},
	SoundBell:    {SoundBell, "bell", "bell.wav"},
	SoundError:   {SoundError, "error", "alert.wav"},
}

func GetSoundConfig(sound Sound) (SoundConfig, bool) {
	config, ok := soundConfigs[sound]
	return config, ok
}

var soundTags = map[string]Sound{
	"message": SoundMessage,
	"connect": SoundConnect,
	"alert":   SoundAlert,
	"bell":    SoundBell,
	"error":   SoundError,
}

// ParseSound maps a tag to a Sound. Unknown tags get the default notification.
func ParseSound(tag string) Sound {
	if sound, ok := soundTags[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return sound
	}
	return SoundMessage
}

func (s Sound) String() string {
	if config, ok := soundConfigs[s]; ok {
		return config.Tag
	}
	return "message"
}
