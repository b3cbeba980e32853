package processor

import (
	"context"
	"testing"
	"time"

	"github.com/see2023/meetingcore/internal/audio"
	"github.com/see2023/meetingcore/internal/events"
	"github.com/see2023/meetingcore/internal/providers/mock"
	"github.com/see2023/meetingcore/internal/speaker"
	"github.com/see2023/meetingcore/internal/vad"
	"github.com/see2023/meetingcore/internal/vadmanager"
)

const testSampleRate = 16000

func loudFrame(n int, amplitude int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func silenceFrame(n int) []int16 {
	return make([]int16, n)
}

func newTestProcessor(t *testing.T, words []string) (*Processor, *events.Channel) {
	t.Helper()

	buf := audio.NewBuffer(testSampleRate, 60)
	quick := vad.LevelConfig{
		MinSpeechDuration:  0.02,
		MinSilenceDuration: 0.2,
		ActivationThreshold: 0.5,
		ForceTrigger:       100,
	}
	long := vad.LevelConfig{
		MinSilenceDuration:      0.4,
		MinSilenceDurationShort: 0.4,
		AdaptiveThreshold:       100,
		ForceTrigger:            100,
	}
	detector := vad.NewDetector(mock.NewVAD(), testSampleRate, quick, long, 1.0)
	vm := vadmanager.NewManager()

	speakerEngine := speaker.NewEngine(mock.NewEmbedder(0.2), speaker.Config{
		BaseThreshold:    0.25,
		MaxEmbeddings:    3,
		MinChunkDuration: 0.2,
		MaxChunkDuration: 20.0,
		DataDir:          t.TempDir(),
	})
	if err := speakerEngine.SwitchMeeting(1); err != nil {
		t.Fatalf("SwitchMeeting: %v", err)
	}

	asr := &mock.ASR{Words: words}
	out := events.NewChannel(100)

	cfg := Config{
		SampleRate:            testSampleRate,
		ASRLanguage:           "en",
		EnableQuick:           true,
		EnableQuickTimeout:    true,
		SentenceSplitEnable:   true,
		MinDurationForSplit:   0.5,
		MinSentenceDuration:   1.0,
		SpeakerMergeThreshold: 0.25 * 1.25,
		LongBufferDuration:    60,
		CleanupInterval:       time.Hour,
	}
	p := New(cfg, buf, detector, vm, speakerEngine, asr, out)
	p.Start()
	t.Cleanup(p.Stop)
	return p, out
}

func drainEvents(out *events.Channel) []events.TranscriptionEvent {
	var result []events.TranscriptionEvent
	for out.Len() > 0 {
		e, ok := out.Next()
		if !ok {
			break
		}
		if te, ok := e.(events.TranscriptionEvent); ok {
			result = append(result, te)
		}
	}
	return result
}

// feedSpeechThenSilence drives frameDuration-sized frames: speechSeconds of
// loud audio, then silenceSeconds of silence, advancing a running wall
// clock.
func feedSpeechThenSilence(t *testing.T, p *Processor, speechSeconds, silenceSeconds float64, amplitude int16) {
	t.Helper()
	const frameDuration = 0.02
	frameSize := int(frameDuration * testSampleRate)
	// The buffer's expiry cutoff is wall-clock based (matching production,
	// where frame end times are real client timestamps), so synthetic test
	// clocks must start near time.Now() rather than at zero.
	clock := nowSeconds()
	ctx := context.Background()

	speechFrames := int(speechSeconds / frameDuration)
	for i := 0; i < speechFrames; i++ {
		clock += frameDuration
		if err := p.ProcessAudio(ctx, loudFrame(frameSize, amplitude), clock); err != nil {
			t.Fatalf("ProcessAudio (speech): %v", err)
		}
	}

	silenceFrames := int(silenceSeconds / frameDuration)
	for i := 0; i < silenceFrames; i++ {
		clock += frameDuration
		if err := p.ProcessAudio(ctx, silenceFrame(frameSize), clock); err != nil {
			t.Fatalf("ProcessAudio (silence): %v", err)
		}
	}
}

func TestSingleLongUtteranceEmitsFinalEvents(t *testing.T) {
	p, out := newTestProcessor(t, []string{"hello", "world", "。", "this", "is", "a", "test", "。"})
	feedSpeechThenSilence(t, p, 6.0, 1.0, 8000)

	finals := drainEvents(out)
	var finalCount int
	for _, e := range finals {
		if e.IsFinal {
			finalCount++
			if e.Text == "" {
				t.Fatal("expected non-empty text on final event")
			}
		}
	}
	if finalCount == 0 {
		t.Fatal("expected at least one final transcription event after long pause")
	}
}

func TestShortClipProducesUnknownSpeakerNonFinalEvent(t *testing.T) {
	p, out := newTestProcessor(t, []string{"hi", "there"})
	// The short-pause window is identified without embedding updates and the
	// registry is still empty, so its speaker stays unknown; 0.5s of silence
	// is long enough to clear the short-pause silence threshold.
	feedSpeechThenSilence(t, p, 0.1, 0.5, 8000)

	got := drainEvents(out)
	foundNonFinalUnknown := false
	for _, e := range got {
		if !e.IsFinal && e.SpeakerID == "" {
			foundNonFinalUnknown = true
		}
	}
	if !foundNonFinalUnknown {
		t.Fatalf("expected a non-final event with empty speaker_id, got %+v", got)
	}
}

func TestForceProcessPendingFinalisesOpenSegment(t *testing.T) {
	p, out := newTestProcessor(t, []string{"pending", "speech"})
	ctx := context.Background()

	const frameDuration = 0.02
	frameSize := int(frameDuration * testSampleRate)
	clock := nowSeconds()
	for i := 0; i < 100; i++ { // 2s of speech, never reaching LongPause
		clock += frameDuration
		if err := p.ProcessAudio(ctx, loudFrame(frameSize, 8000), clock); err != nil {
			t.Fatalf("ProcessAudio: %v", err)
		}
	}

	p.mu.Lock()
	open := p.currentLongSegment != nil
	p.mu.Unlock()
	if !open {
		t.Fatal("expected an open long segment before force-processing")
	}

	p.ForceProcessPending(ctx)

	p.mu.Lock()
	open = p.currentLongSegment != nil
	p.mu.Unlock()
	if open {
		t.Fatal("expected long segment to be cleared after force-processing")
	}

	finals := drainEvents(out)
	if len(finals) == 0 {
		t.Fatal("expected a final event from force-processing pending audio")
	}
}
