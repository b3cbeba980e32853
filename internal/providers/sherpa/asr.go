// Package sherpa wires the three black-box model contracts (ASR,
// vad.Prober, speaker.Embedder) to github.com/k2-fsa/sherpa-onnx-go, the
// same onnxruntime binding the teacher used for its transducer ASR
// provider. Adapted from the teacher's internal/pkg/sherpa/provider.go:
// same OnlineRecognizer setup and greedy-search decode loop, but exposed as
// a synchronous Recognize over a finished audio slice instead of a
// streaming channel, since segments here are already buffered by the
// processor before being handed to ASR.
package sherpa

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/see2023/meetingcore/internal/providers"
	onnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// ASRConfig mirrors the teacher's sherpa Config for the transducer model.
type ASRConfig struct {
	Provider   string
	NumThreads int
	ModelsDir  string
	ModelName  string
	Encoder    string
	Decoder    string
	Joiner     string
	Tokens     string
	Languages  []string
}

// IsLanguageSupported reports whether lang is one of the model's languages.
func (c *ASRConfig) IsLanguageSupported(lang string) bool {
	for _, l := range c.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// ASR implements providers.ASRProvider over a sherpa-onnx OnlineRecognizer.
type ASR struct {
	config     ASRConfig
	recognizer *onnx.OnlineRecognizer
	mu         sync.Mutex
}

// NewASR initialises a transducer recognizer from config.
func NewASR(config ASRConfig) (*ASR, error) {
	if config.ModelName == "" || config.Encoder == "" || config.Decoder == "" ||
		config.Joiner == "" || config.Tokens == "" {
		return nil, fmt.Errorf("sherpa asr: model_name, encoder, decoder, joiner and tokens are required")
	}
	if config.Provider == "" {
		config.Provider = "cpu"
	}
	if config.NumThreads == 0 {
		config.NumThreads = 4
	}
	if config.ModelsDir == "" {
		config.ModelsDir = "./models"
	}

	recognizerConfig := &onnx.OnlineRecognizerConfig{}
	recognizerConfig.FeatConfig.SampleRate = 16000
	recognizerConfig.FeatConfig.FeatureDim = 80

	modelDir := filepath.Join(config.ModelsDir, config.ModelName)
	recognizerConfig.ModelConfig.Transducer.Encoder = filepath.Join(modelDir, config.Encoder)
	recognizerConfig.ModelConfig.Transducer.Decoder = filepath.Join(modelDir, config.Decoder)
	recognizerConfig.ModelConfig.Transducer.Joiner = filepath.Join(modelDir, config.Joiner)
	recognizerConfig.ModelConfig.Tokens = filepath.Join(modelDir, config.Tokens)
	recognizerConfig.ModelConfig.NumThreads = config.NumThreads
	recognizerConfig.ModelConfig.Provider = config.Provider
	recognizerConfig.DecodingMethod = "greedy_search"
	recognizerConfig.MaxActivePaths = 4

	recognizer := onnx.NewOnlineRecognizer(recognizerConfig)
	if recognizer == nil {
		return nil, fmt.Errorf("sherpa asr: NewOnlineRecognizer returned nil for model %q", config.ModelName)
	}

	return &ASR{config: config, recognizer: recognizer}, nil
}

// Recognize feeds samples through a fresh OnlineStream with silence padding
// on both ends (matching the teacher's Transcribe padding), decodes to
// completion, and returns the final hypothesis. Per-token timestamps are
// not exposed by the greedy-search transducer result, so the whole
// utterance is reported as one token spanning its duration. With a single
// range, the processor's sentence splitting fails for multi-token text and
// the long segment is processed whole.
func (a *ASR) Recognize(ctx context.Context, samples []int16, sampleRate int, language string) (*providers.ASRResult, error) {
	if len(samples) == 0 {
		return &providers.ASRResult{}, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	stream := onnx.NewOnlineStream(a.recognizer)
	if stream == nil {
		return nil, fmt.Errorf("sherpa asr: failed to create OnlineStream")
	}
	defer onnx.DeleteOnlineStream(stream)

	floatSamples := int16ToFloat32(samples)

	leftPadding := make([]float32, int(0.3*16000))
	stream.AcceptWaveform(16000, leftPadding)
	stream.AcceptWaveform(16000, floatSamples)
	rightPadding := make([]float32, int(0.6*16000))
	stream.AcceptWaveform(16000, rightPadding)
	stream.InputFinished()

	for a.recognizer.IsReady(stream) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			a.recognizer.Decode(stream)
		}
	}

	result := a.recognizer.GetResult(stream)
	if result == nil {
		return &providers.ASRResult{}, nil
	}

	durationMs := len(samples) * 1000 / sampleRate
	var timestamps [][2]int
	if result.Text != "" {
		timestamps = [][2]int{{0, durationMs}}
	}
	return &providers.ASRResult{Text: result.Text, TimestampsMs: timestamps}, nil
}

// Close releases the recognizer.
func (a *ASR) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recognizer != nil {
		onnx.DeleteOnlineRecognizer(a.recognizer)
		a.recognizer = nil
	}
	return nil
}

func int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
