package mock

import (
	"context"
	"testing"
)

func TestASRRecognizeSplitsWordsAcrossDuration(t *testing.T) {
	a := NewASR()
	samples := make([]int16, 16000*2) // 2s at 16kHz
	result, err := a.Recognize(context.Background(), samples, 16000, "en")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Text == "" {
		t.Fatal("expected non-empty text")
	}
	if len(result.TimestampsMs) != len(a.Words) {
		t.Fatalf("expected %d timestamp ranges, got %d", len(a.Words), len(result.TimestampsMs))
	}
	last := result.TimestampsMs[len(result.TimestampsMs)-1]
	if last[1] != 2000 {
		t.Fatalf("expected final timestamp to reach full duration 2000ms, got %v", last)
	}
}

func TestASRRecognizeEmptyAudio(t *testing.T) {
	a := NewASR()
	result, err := a.Recognize(context.Background(), nil, 16000, "en")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if result.Text != "" {
		t.Fatalf("expected empty text for empty audio, got %q", result.Text)
	}
}

func TestVADSpeechProbabilitySilenceIsZero(t *testing.T) {
	v := NewVAD()
	frame := make([]float32, 160)
	prob, err := v.SpeechProbability(frame)
	if err != nil {
		t.Fatalf("SpeechProbability: %v", err)
	}
	if prob != 0 {
		t.Fatalf("expected 0 probability for silence, got %v", prob)
	}
}

func TestVADSpeechProbabilityLoudFrameSaturates(t *testing.T) {
	v := NewVAD()
	frame := make([]float32, 160)
	for i := range frame {
		frame[i] = 1.0
	}
	prob, err := v.SpeechProbability(frame)
	if err != nil {
		t.Fatalf("SpeechProbability: %v", err)
	}
	if prob != 1 {
		t.Fatalf("expected saturated probability 1.0 for loud frame, got %v", prob)
	}
}

func TestEmbedderRefusesShortAudio(t *testing.T) {
	e := NewEmbedder(1.0)
	samples := make([]int16, 8000) // 0.5s at 16kHz
	vec, err := e.Embed(samples, 16000)
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec != nil {
		t.Fatalf("expected nil embedding for audio below min duration, got %v", vec)
	}
}

func TestEmbedderDistinguishesLevels(t *testing.T) {
	e := NewEmbedder(0.1)
	low := make([]int16, 16000)
	high := make([]int16, 16000)
	for i := range high {
		high[i] = 5000
	}
	vLow, _ := e.Embed(low, 16000)
	vHigh, _ := e.Embed(high, 16000)
	if vLow == nil || vHigh == nil {
		t.Fatal("expected non-nil embeddings")
	}
	if vLow[0] == vHigh[0] {
		t.Fatalf("expected different mean component for different amplitude levels")
	}
}
