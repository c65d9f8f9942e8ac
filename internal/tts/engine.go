package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// VoiceConfig selects the synthesis voice.
type VoiceConfig struct {
	Voice    string
	Language string
}

// Engine turns text into an audio file. Implementations wrap an external
// synthesizer and must be idempotent for the same (text, voice, path).
type Engine interface {
	Synthesize(ctx context.Context, text string, voice VoiceConfig, outputPath string) error
}

// ExecEngine shells out to a configured synthesizer binary (piper-style:
// reads text on stdin, writes a wave file). Argument placeholders:
// {output}, {voice}, {language}.
type ExecEngine struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// NewExecEngine creates an engine around the given command line.
func NewExecEngine(command string, args []string, timeout time.Duration) *ExecEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ExecEngine{Command: command, Args: args, Timeout: timeout}
}

func (e *ExecEngine) Synthesize(ctx context.Context, text string, voice VoiceConfig, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := make([]string, 0, len(e.Args))
	replacer := strings.NewReplacer(
		"{output}", outputPath,
		"{voice}", voice.Voice,
		"{language}", voice.Language,
	)
	for _, a := range e.Args {
		args = append(args, replacer.Replace(a))
	}

	cmd := exec.CommandContext(ctx, e.Command, args...)
	cmd.Stdin = strings.NewReader(text)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("synthesizer %s: %w (%s)", e.Command, err, strings.TrimSpace(string(out)))
	}

	if _, err := os.Stat(outputPath); err != nil {
		return fmt.Errorf("synthesizer produced no output: %w", err)
	}
	return nil
}
