package sherpa

import (
	"fmt"
	"sync"

	onnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// EmbedderConfig configures the speaker-embedding onnx model (campplus or
// 3d-speaker, selected by the Model path).
type EmbedderConfig struct {
	Model      string
	NumThreads int
	Provider   string
}

// Embedder implements speaker.Embedder over sherpa-onnx's
// SpeakerEmbeddingExtractor.
type Embedder struct {
	mu        sync.Mutex
	extractor *onnx.SpeakerEmbeddingExtractor
}

// NewEmbedder initialises the speaker-embedding model from config.
func NewEmbedder(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("sherpa embedder: model path is required")
	}
	if config.NumThreads == 0 {
		config.NumThreads = 1
	}
	if config.Provider == "" {
		config.Provider = "cpu"
	}

	extractorConfig := &onnx.SpeakerEmbeddingExtractorConfig{
		Model:      config.Model,
		NumThreads: config.NumThreads,
		Provider:   config.Provider,
	}
	extractor := onnx.NewSpeakerEmbeddingExtractor(extractorConfig)
	if extractor == nil {
		return nil, fmt.Errorf("sherpa embedder: NewSpeakerEmbeddingExtractor returned nil for model %q", config.Model)
	}
	return &Embedder{extractor: extractor}, nil
}

// Embed implements speaker.Embedder. Returns (nil, nil) for audio too short
// for the stream to produce a ready embedding.
func (e *Embedder) Embed(samples []int16, sampleRate int) ([]float32, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	stream := onnx.NewSpeakerEmbeddingExtractorStream(e.extractor)
	if stream == nil {
		return nil, fmt.Errorf("sherpa embedder: failed to create stream")
	}
	defer onnx.DeleteSpeakerEmbeddingExtractorStream(stream)

	stream.AcceptWaveform(sampleRate, int16ToFloat32(samples))
	stream.InputFinished()

	if !e.extractor.IsReady(stream) {
		return nil, nil
	}
	return e.extractor.Compute(stream), nil
}

// Close releases the underlying extractor.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.extractor != nil {
		onnx.DeleteSpeakerEmbeddingExtractor(e.extractor)
		e.extractor = nil
	}
	return nil
}
