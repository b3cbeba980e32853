// Package mock provides deterministic, dependency-free implementations of
// the ASR, VAD probability, and speaker embedding contracts, for tests and
// for local runs without onnx model files on disk. Adapted from the
// teacher's canned-transcript mock ASR provider.
package mock

import (
	"context"
	"fmt"

	"github.com/see2023/meetingcore/internal/providers"
)

// ASR is a canned ASR provider. It ignores the audio content and returns a
// fixed sentence, splitting the available duration evenly across words so
// callers exercising timestamp-alignment logic get plausible ranges.
type ASR struct {
	Words []string
}

// NewASR builds a mock ASR provider with the teacher's canned phrase.
func NewASR() *ASR {
	return &ASR{Words: []string{"hello", "this", "is", "a", "test", "transcription"}}
}

// Recognize implements providers.ASRProvider.
func (a *ASR) Recognize(ctx context.Context, samples []int16, sampleRate int, language string) (*providers.ASRResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if len(samples) == 0 {
		return &providers.ASRResult{}, nil
	}
	durationMs := len(samples) * 1000 / sampleRate
	words := a.Words
	if len(words) == 0 {
		return &providers.ASRResult{}, nil
	}
	perWord := durationMs / len(words)
	if perWord <= 0 {
		perWord = 1
	}

	text := ""
	timestamps := make([][2]int, len(words))
	for i, w := range words {
		if i > 0 {
			text += " "
		}
		text += w
		start := i * perWord
		end := start + perWord
		if i == len(words)-1 {
			end = durationMs
		}
		timestamps[i] = [2]int{start, end}
	}
	return &providers.ASRResult{Text: text, TimestampsMs: timestamps}, nil
}

// Close implements providers.ASRProvider.
func (a *ASR) Close() error { return nil }

// VAD is an energy-based mock speech-probability estimator: the frame's mean
// square divided by the square of a fixed reference level, i.e.
// (RMS/reference)², capped at 1. Good
// enough to drive the state machine with synthetic loud/silent frames in
// tests without depending on a real model.
type VAD struct {
	// ReferenceAmplitude is the RMS level (in [-1,1] units) that maps to a
	// probability of 1.0. Frames at or above it saturate.
	ReferenceAmplitude float32
}

// NewVAD builds a mock VAD prober with a sensible default reference level.
func NewVAD() *VAD {
	return &VAD{ReferenceAmplitude: 0.1}
}

// SpeechProbability implements vad.Prober.
func (v *VAD) SpeechProbability(frame []float32) (float32, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	var sumSquares float64
	for _, s := range frame {
		sumSquares += float64(s) * float64(s)
	}
	rms := float32(sumSquares / float64(len(frame)))
	ref := v.ReferenceAmplitude * v.ReferenceAmplitude
	if ref <= 0 {
		return 0, fmt.Errorf("mock vad: non-positive reference amplitude")
	}
	prob := rms / ref
	if prob > 1 {
		prob = 1
	}
	return prob, nil
}

// Embedder derives a deterministic low-dimensional "voiceprint" from the
// mean and variance of the raw samples, so distinct synthetic speakers (e.g.
// constant-value test clips at different levels) resolve to distinct
// directions without needing a real embedding model.
type Embedder struct {
	MinDuration float64
}

// NewEmbedder builds a mock embedder with the teacher-configured minimum
// chunk duration below which embedding is refused.
func NewEmbedder(minDuration float64) *Embedder {
	return &Embedder{MinDuration: minDuration}
}

// Embed implements speaker.Embedder.
func (e *Embedder) Embed(samples []int16, sampleRate int) ([]float32, error) {
	duration := float64(len(samples)) / float64(sampleRate)
	if duration < e.MinDuration {
		return nil, nil
	}
	var sum, sumSquares float64
	for _, s := range samples {
		v := float64(s)
		sum += v
		sumSquares += v * v
	}
	n := float64(len(samples))
	mean := sum / n
	variance := sumSquares/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	return []float32{float32(mean), float32(variance), 1, 0}, nil
}
