package tts

import (
	"context"
	"strings"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
)

// Comment eligibility modes.
const (
	CommentAny     = "any"
	CommentDot     = "dot"     // only comments starting with "."
	CommentSlash   = "slash"   // only comments starting with "/"
	CommentCommand = "command" // only comments starting with SpecialCommand
)

// Settings controls which comments are spoken and how.
type Settings struct {
	Enabled          bool   `mapstructure:"enabled"`
	CommentType      string `mapstructure:"comment_type"`
	SpecialCommand   string `mapstructure:"special_command"`
	FilterMentions   bool   `mapstructure:"filter_mentions"`
	FilterCommands   bool   `mapstructure:"filter_commands"`
	MaxCommentLength int    `mapstructure:"max_comment_length"`
	Voice            string `mapstructure:"voice"`
	Language         string `mapstructure:"language"`
}

// DefaultSettings returns the settings used when a room has no stored
// configuration.
func DefaultSettings() Settings {
	return Settings{
		Enabled:          false,
		CommentType:      CommentAny,
		FilterMentions:   true,
		FilterCommands:   true,
		MaxCommentLength: 200,
		Voice:            "default",
		Language:         "en-US",
	}
}

// SettingsSource resolves TTS settings per room. Backed by per-user dashboard
// records in production and by a static value in tests.
type SettingsSource interface {
	Settings(ctx context.Context, room domain.RoomID) (Settings, error)
}

// StaticSettings is a SettingsSource returning one fixed value.
type StaticSettings Settings

func (s StaticSettings) Settings(context.Context, domain.RoomID) (Settings, error) {
	return Settings(s), nil
}

// Eligible applies the comment filter chain and returns the text that should
// be spoken. ok is false when the comment must not be synthesized.
func (s Settings) Eligible(comment string) (text string, ok bool) {
	if !s.Enabled {
		return "", false
	}

	// Prefix modes speak the remainder, not the trigger itself.
	switch s.CommentType {
	case CommentDot:
		if !strings.HasPrefix(comment, ".") {
			return "", false
		}
		comment = strings.TrimSpace(strings.TrimPrefix(comment, "."))
	case CommentSlash:
		if !strings.HasPrefix(comment, "/") {
			return "", false
		}
		comment = strings.TrimSpace(strings.TrimPrefix(comment, "/"))
	case CommentCommand:
		if s.SpecialCommand == "" || !strings.HasPrefix(comment, s.SpecialCommand) {
			return "", false
		}
		comment = strings.TrimSpace(strings.TrimPrefix(comment, s.SpecialCommand))
	}

	if s.FilterMentions && strings.Contains(comment, "@") {
		return "", false
	}
	if s.FilterCommands && strings.HasPrefix(comment, "!") {
		return "", false
	}

	// Truncate by characters, not bytes, so a multi-byte rune is never
	// split mid-sequence.
	if s.MaxCommentLength > 0 {
		if runes := []rune(comment); len(runes) > s.MaxCommentLength {
			comment = string(runes[:s.MaxCommentLength])
		}
	}
	if strings.TrimSpace(comment) == "" {
		return "", false
	}

	return comment, true
}
