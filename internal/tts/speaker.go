package tts

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	"github.com/AlirizaAslan/tikfinity/internal/domain"
	"github.com/AlirizaAslan/tikfinity/pkg/log"
)

// Config holds speaker file-layout settings.
type Config struct {
	// MediaDir is where synthesized audio files are written.
	MediaDir string `mapstructure:"media_dir"`
	// BaseURL is the public prefix under which MediaDir is served.
	BaseURL string `mapstructure:"base_url"`
}

// Utterance is the result of processing one eligible comment.
type Utterance struct {
	Text     string
	AudioURL string
	Cached   bool
}

// Speaker runs the comment filter chain and synthesizes eligible comments.
// Audio is cached by a content hash of the truncated text plus voice
// settings, so identical repeated comments are synthesized at most once;
// concurrent requests for the same hash are collapsed with singleflight.
type Speaker struct {
	cfg      Config
	engine   Engine
	settings SettingsSource
	sf       singleflight.Group
}

// NewSpeaker creates a speaker.
func NewSpeaker(cfg Config, engine Engine, settings SettingsSource) *Speaker {
	if cfg.MediaDir == "" {
		cfg.MediaDir = filepath.Join("media", "tts")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "/media/tts"
	}
	return &Speaker{cfg: cfg, engine: engine, settings: settings}
}

// Process filters one comment and, when it is eligible, returns the spoken
// text and an audio reference. ok is false when the comment was filtered
// out; an error means the comment was eligible but synthesis failed.
func (s *Speaker) Process(ctx context.Context, room domain.RoomID, comment string) (*Utterance, bool, error) {
	settings, err := s.settings.Settings(ctx, room)
	if err != nil {
		return nil, false, fmt.Errorf("load tts settings: %w", err)
	}

	text, ok := settings.Eligible(comment)
	if !ok {
		return nil, false, nil
	}

	voice := VoiceConfig{Voice: settings.Voice, Language: settings.Language}
	hash := contentHash(text, voice)
	filename := fmt.Sprintf("tts_%s.wav", hash)
	path := filepath.Join(s.cfg.MediaDir, filename)
	audioURL := s.cfg.BaseURL + "/" + filename

	if _, err := os.Stat(path); err == nil {
		return &Utterance{Text: text, AudioURL: audioURL, Cached: true}, true, nil
	}

	_, err, shared := s.sf.Do(hash, func() (interface{}, error) {
		// Another waiter may have finished while we queued.
		if _, err := os.Stat(path); err == nil {
			return nil, nil
		}
		if err := os.MkdirAll(s.cfg.MediaDir, 0o755); err != nil {
			return nil, fmt.Errorf("create media dir: %w", err)
		}
		return nil, s.engine.Synthesize(ctx, text, voice, path)
	})
	if err != nil {
		return nil, false, fmt.Errorf("synthesize: %w", err)
	}
	if shared {
		log.Ctx(ctx).Debug().Str(log.FieldRoomID, room.String()).Msg("tts synthesis shared")
	}

	return &Utterance{Text: text, AudioURL: audioURL}, true, nil
}

// contentHash keys the audio cache: same truncated text and voice settings
// always map to the same file.
func contentHash(text string, voice VoiceConfig) string {
	sum := md5.Sum([]byte(voice.Language + "|" + voice.Voice + "|" + text))
	return hex.EncodeToString(sum[:])[:12]
}
