package vad

import "testing"

type constProber struct{ prob float32 }

func (c constProber) SpeechProbability(frame []float32) (float32, error) { return c.prob, nil }

func testConfigs() (LevelConfig, LevelConfig) {
	quick := LevelConfig{
		MinSilenceDuration: 0.3,
		ActivationThreshold: 0.3,
		ForceTrigger:        2.5,
	}
	long := LevelConfig{
		MinSilenceDuration:      0.8,
		MinSilenceDurationShort: 0.5,
		ActivationThreshold:     0.5,
		ForceTrigger:            20.0,
		AdaptiveThreshold:       3.0,
	}
	return quick, long
}

func frameOf(n int, sampleRate int) []float32 {
	return make([]float32, n)
}

func TestSpeechStartEmittedOnce(t *testing.T) {
	quick, long := testConfigs()
	d := NewDetector(constProber{prob: 0.9}, 16000, quick, long, 0.8)

	ev, _ := d.ProcessFrame(frameOf(1600, 16000)) // 100ms
	if ev != SpeechStart {
		t.Fatalf("expected SpeechStart, got %v", ev)
	}
	ev, _ = d.ProcessFrame(frameOf(1600, 16000))
	if ev != NoEvent {
		t.Fatalf("expected NoEvent on second voiced frame, got %v", ev)
	}
}

func TestLongPauseAfterSilence(t *testing.T) {
	quick, long := testConfigs()
	d := NewDetector(constProber{prob: 0.9}, 16000, quick, long, 1.0)
	d.ProcessFrame(frameOf(1600, 16000)) // speech start

	silent := constProber{prob: 0.0}
	d.prober = silent
	var last Event
	for i := 0; i < 10; i++ { // 10 * 100ms = 1.0s > long.MinSilenceDuration
		last, _ = d.ProcessFrame(frameOf(1600, 16000))
		if last == LongPause {
			break
		}
	}
	if last != LongPause {
		t.Fatalf("expected LongPause, got %v", last)
	}
}

func TestShortPauseThenSuppressedUntilSpeechAgain(t *testing.T) {
	quick, long := testConfigs()
	d := NewDetector(constProber{prob: 0.9}, 16000, quick, long, 1.0)
	d.ProcessFrame(frameOf(1600, 16000))

	d.prober = constProber{prob: 0.0}
	var events []Event
	for i := 0; i < 4; i++ { // 4*100ms = 0.4s, crosses quick.MinSilenceDuration=0.3 but not long=0.8
		ev, _ := d.ProcessFrame(frameOf(1600, 16000))
		events = append(events, ev)
	}
	foundShortPause := false
	for _, e := range events {
		if e == ShortPause {
			foundShortPause = true
		}
	}
	if !foundShortPause {
		t.Fatalf("expected a ShortPause among %v", events)
	}

	// Should not re-trigger short pause again without new speech.
	ev, _ := d.ProcessFrame(frameOf(1600, 16000))
	if ev == ShortPause {
		t.Fatal("short pause should not re-trigger without intervening speech")
	}
}

func TestForceTriggerShortTimeout(t *testing.T) {
	quick, long := testConfigs()
	quick.ForceTrigger = 0.2
	d := NewDetector(constProber{prob: 0.9}, 16000, quick, long, 1.0)

	var last Event
	for i := 0; i < 3; i++ {
		last, _ = d.ProcessFrame(frameOf(1600, 16000)) // 100ms each
		if last == ShortTimeout {
			break
		}
	}
	if last != ShortTimeout {
		t.Fatalf("expected ShortTimeout, got %v", last)
	}
}

func TestResetClearsState(t *testing.T) {
	quick, long := testConfigs()
	d := NewDetector(constProber{prob: 0.9}, 16000, quick, long, 1.0)
	d.ProcessFrame(frameOf(1600, 16000))
	if !d.IsSpeaking() {
		t.Fatal("expected speaking state")
	}
	d.Reset()
	if d.IsSpeaking() {
		t.Fatal("expected reset to clear speaking state")
	}
}
