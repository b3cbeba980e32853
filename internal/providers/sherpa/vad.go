package sherpa

import (
	"fmt"
	"sync"

	onnx "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// VADConfig configures the silero-vad onnx model backing the Prober.
type VADConfig struct {
	Model      string
	Threshold  float32
	SampleRate int
	NumThreads int
	Provider   string
}

// VAD implements vad.Prober over sherpa-onnx's VoiceActivityDetector.
//
// The silero-vad model as exposed by sherpa-onnx-go reports a binary
// speech/non-speech decision per buffered window rather than a raw
// probability, so SpeechProbability saturates to 0 or 1. The detector's own
// exponential smoothing (internal/vad.ExpFilter) still gives useful
// hysteresis on top of that binary signal, which is why the two-level VAD
// state machine is kept in Go rather than delegated to the model.
type VAD struct {
	mu  sync.Mutex
	det *onnx.VoiceActivityDetector
}

// NewVAD initialises the silero-vad model from config.
func NewVAD(config VADConfig) (*VAD, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("sherpa vad: model path is required")
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.NumThreads == 0 {
		config.NumThreads = 1
	}
	if config.Provider == "" {
		config.Provider = "cpu"
	}
	if config.Threshold == 0 {
		config.Threshold = 0.5
	}

	vadConfig := onnx.VadModelConfig{}
	vadConfig.SileroVad.Model = config.Model
	vadConfig.SileroVad.Threshold = config.Threshold
	vadConfig.SampleRate = config.SampleRate
	vadConfig.NumThreads = config.NumThreads
	vadConfig.Provider = config.Provider

	det := onnx.NewVoiceActivityDetector(&vadConfig, 30)
	if det == nil {
		return nil, fmt.Errorf("sherpa vad: NewVoiceActivityDetector returned nil for model %q", config.Model)
	}
	return &VAD{det: det}, nil
}

// SpeechProbability implements vad.Prober.
func (v *VAD) SpeechProbability(frame []float32) (float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.det.AcceptWaveform(frame)
	if v.det.IsSpeechDetected() {
		return 1.0, nil
	}
	return 0.0, nil
}

// Close releases the underlying detector.
func (v *VAD) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.det != nil {
		onnx.DeleteVoiceActivityDetector(v.det)
		v.det = nil
	}
	return nil
}
