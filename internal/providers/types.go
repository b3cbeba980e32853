// Package providers declares the black-box model contracts (ASR, VAD
// probability, speaker embedding) that SPEC_FULL.md treats as external
// collaborators, plus the registry that lazily loads concrete
// implementations (sherpa-onnx or mock) by provider type.
package providers

import "context"

// ASRResult is one recognition result: full text plus per-token
// [start_ms, end_ms] ranges relative to the audio slice passed in.
type ASRResult struct {
	Text         string
	TimestampsMs [][2]int
}

// ASRProvider is the black-box ASR model: recognize(audio) -> text + per
// token timestamps.
type ASRProvider interface {
	Recognize(ctx context.Context, samples []int16, sampleRate int, language string) (*ASRResult, error)
	Close() error
}

// Type identifies which concrete backend a provider uses.
type Type string

const (
	TypeSherpaOnnx Type = "sherpa-onnx"
	TypeMock       Type = "mock"
)
