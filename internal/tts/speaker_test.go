package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEngine struct {
	err   error
	block chan struct{} // when set, Synthesize waits on it

	calls atomic.Int32
}

func (e *countingEngine) Synthesize(ctx context.Context, text string, voice VoiceConfig, outputPath string) error {
	e.calls.Add(1)
	if e.block != nil {
		<-e.block
	}
	if e.err != nil {
		return e.err
	}
	return os.WriteFile(outputPath, []byte("RIFFfake"), 0o644)
}

func enabledSettings() Settings {
	return Settings{
		Enabled:          true,
		CommentType:      CommentAny,
		FilterMentions:   true,
		MaxCommentLength: 200,
		Voice:            "amy",
		Language:         "en",
	}
}

func newTestSpeaker(t *testing.T, engine Engine) *Speaker {
	t.Helper()
	return NewSpeaker(
		Config{MediaDir: t.TempDir(), BaseURL: "/media/tts"},
		engine,
		StaticSettings(enabledSettings()),
	)
}

func TestSpeakerSynthesizesEligibleComment(t *testing.T) {
	engine := &countingEngine{}
	speaker := newTestSpeaker(t, engine)

	utt, ok, err := speaker.Process(context.Background(), "streamer", "hello chat")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello chat", utt.Text)
	assert.Contains(t, utt.AudioURL, "/media/tts/tts_")
	assert.False(t, utt.Cached)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestSpeakerFilteredCommentSkipsSynthesis(t *testing.T) {
	engine := &countingEngine{}
	speaker := newTestSpeaker(t, engine)

	utt, ok, err := speaker.Process(context.Background(), "streamer", "ping @friend")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, utt)
	assert.Equal(t, int32(0), engine.calls.Load())
}

func TestSpeakerCachesByContent(t *testing.T) {
	engine := &countingEngine{}
	speaker := newTestSpeaker(t, engine)

	first, ok, err := speaker.Process(context.Background(), "streamer", "hello chat")
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := speaker.Process(context.Background(), "streamer", "hello chat")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, first.AudioURL, second.AudioURL)
	assert.True(t, second.Cached)
	assert.Equal(t, int32(1), engine.calls.Load(), "identical comments must reuse the audio file")
}

func TestSpeakerDistinctCommentsDistinctFiles(t *testing.T) {
	engine := &countingEngine{}
	speaker := newTestSpeaker(t, engine)

	first, _, err := speaker.Process(context.Background(), "streamer", "hello")
	require.NoError(t, err)
	second, _, err := speaker.Process(context.Background(), "streamer", "goodbye")
	require.NoError(t, err)

	assert.NotEqual(t, first.AudioURL, second.AudioURL)
	assert.Equal(t, int32(2), engine.calls.Load())
}

func TestSpeakerCollapsesConcurrentSynthesis(t *testing.T) {
	engine := &countingEngine{block: make(chan struct{})}
	speaker := newTestSpeaker(t, engine)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = speaker.Process(context.Background(), "streamer", "hello chat")
		}(i)
	}

	close(engine.block)
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), engine.calls.Load(), "concurrent identical comments must synthesize once")
}

func TestSpeakerSynthesisFailureSurfaces(t *testing.T) {
	engine := &countingEngine{err: errors.New("piper not installed")}
	speaker := newTestSpeaker(t, engine)

	_, _, err := speaker.Process(context.Background(), "streamer", "hello chat")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesize")
}

func TestSpeakerWritesUnderMediaDir(t *testing.T) {
	engine := &countingEngine{}
	dir := t.TempDir()
	speaker := NewSpeaker(Config{MediaDir: dir, BaseURL: "/media/tts"}, engine, StaticSettings(enabledSettings()))

	utt, ok, err := speaker.Process(context.Background(), "streamer", "hello chat")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = os.Stat(filepath.Join(dir, filepath.Base(utt.AudioURL)))
	assert.NoError(t, err, "audio file must exist where the URL points")
}
