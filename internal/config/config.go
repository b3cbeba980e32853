package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Auth       AuthConfig
	Audio      AudioConfig
	Rate       RateLimitConfig
	ASR        ASRConfig
	Buffer     BufferConfig
	Speaker    SpeakerConfig
	VADModel   VADModelConfig
	VADManager VADManagerConfig
	Events     EventsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"` // Empty means allow all (wildcard)
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"` // List of valid API keys, empty means no auth required
}

// AudioConfig holds audio processing limits and sentence-split tunables.
type AudioConfig struct {
	Provider             string        `yaml:"provider"`              // ASR Provider type (e.g., "sherpa-onnx", "mock")
	MaxBufferSize        int           `yaml:"max_audio_buffer_size"` // Maximum audio buffer size in bytes (default 15MB)
	TranscriptionTimeout time.Duration `yaml:"transcription_timeout"` // Timeout for transcription calls (default 30s)
	SampleRate            int          `yaml:"sample_rate"`
	SentenceSplitEnable   bool         `yaml:"sentence_split_enable"`
	MinDurationForSplit   float64      `yaml:"min_duration_for_split"`
	ASRLanguage           string       `yaml:"asr_language"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxConnectionsPerIP int           `yaml:"max_connections_per_ip"`
	RequestsPerSecond   int           `yaml:"requests_per_second"`
	BurstSize           int           `yaml:"burst_size"`
	CleanupInterval     time.Duration `yaml:"cleanup_interval"`
}

// ASRConfig holds ASR provider configuration loaded from YAML
type ASRConfig struct {
	Provider     string                 `yaml:"provider"`      // cpu or gpu
	NumThreads   int                    `yaml:"num_threads"`   // Number of threads for inference
	ModelsDir    string                 `yaml:"models_dir"`    // Base directory for models
	DefaultModel string                 `yaml:"default_model"` // Default model to use
	Models       map[string]ModelConfig `yaml:"models"`        // Model configurations
}

// ModelConfig holds configuration for a specific ASR model
type ModelConfig struct {
	Encoder   string   `yaml:"encoder"`   // Path to encoder model file
	Decoder   string   `yaml:"decoder"`   // Path to decoder model file
	Joiner    string   `yaml:"joiner"`    // Path to joiner model file
	Tokens    string   `yaml:"tokens"`    // Path to tokens file
	Languages []string `yaml:"languages"` // Supported languages
}

// BufferConfig holds AudioBuffer tunables (SPEC_FULL.md §6, buffer.*).
type BufferConfig struct {
	LongBufferDuration float64 `yaml:"long_buffer_duration"`
}

// SpeakerConfig holds SpeakerEngine tunables (SPEC_FULL.md §6, speaker.*).
type SpeakerConfig struct {
	ThresholdBase        float64 `yaml:"threshold_base"`
	MaxEmbeddings        int     `yaml:"max_embeddings"`
	MinChunkDuration     float64 `yaml:"min_chunk_duration"`
	MaxChunkDuration     float64 `yaml:"max_chunk_duration"`
	SpeakerMergeFactor   float64 `yaml:"speaker_merge_factor"` // multiplier applied to threshold_base
	DataDir              string  `yaml:"data_dir"`
	EmbeddingModel       string  `yaml:"embedding_model"` // path to the sherpa-onnx speaker-embedding model
}

// VADLevelConfig mirrors vad.LevelConfig's YAML-facing shape for one tier
// (quick or long).
type VADLevelConfig struct {
	MinSpeechDuration       float64 `yaml:"min_speech_duration"`
	MinSilenceDuration      float64 `yaml:"min_silence_duration"`
	MinSilenceDurationShort float64 `yaml:"min_silence_duration_short"`
	ActivationThreshold     float64 `yaml:"activation_threshold"`
	AdaptiveThreshold       float64 `yaml:"adaptive_threshold"`
	ForceTrigger            float64 `yaml:"force_trigger"`
}

// VADModelConfig holds the two-level VAD tunables (SPEC_FULL.md §6, vad_model.*).
type VADModelConfig struct {
	Quick              VADLevelConfig `yaml:"quick"`
	Long               VADLevelConfig `yaml:"long"`
	EnableQuick        bool           `yaml:"enable_quick"`
	EnableQuickTimeout bool           `yaml:"enable_quick_timeout"`
	ExpFilterAlpha     float64        `yaml:"exp_filter_alpha"`
	ModelPath          string         `yaml:"model_path"` // path to the sherpa-onnx silero-vad model
}

// VADManagerConfig holds VADManager tunables (SPEC_FULL.md §6, vad_manager.*).
type VADManagerConfig struct {
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// EventsConfig holds EventChannel tunables (SPEC_FULL.md §6, events.*).
type EventsConfig struct {
	MaxQueueSize int `yaml:"max_queue_size"`
}

// YAMLConfig holds configuration loaded from YAML file
type YAMLConfig struct {
	Server     ServerConfig      `yaml:"server"`
	Auth       AuthConfig        `yaml:"auth"`
	Audio      AudioConfig       `yaml:"audio"`
	Rate       RateLimitConfig   `yaml:"rate"`
	ASR        ASRConfig         `yaml:"asr"`
	Buffer     BufferConfig      `yaml:"buffer"`
	Speaker    SpeakerConfig     `yaml:"speaker"`
	VADModel   VADModelConfig    `yaml:"vad_model"`
	VADManager VADManagerConfig  `yaml:"vad_manager"`
	Events     EventsConfig      `yaml:"events"`
}

func defaultVADModel() VADModelConfig {
	return VADModelConfig{
		Quick: VADLevelConfig{
			MinSpeechDuration:   0.1,
			MinSilenceDuration:  0.5,
			ActivationThreshold: 0.5,
			ForceTrigger:        30,
		},
		Long: VADLevelConfig{
			MinSpeechDuration:       0.1,
			MinSilenceDuration:      1.5,
			MinSilenceDurationShort: 0.8,
			ActivationThreshold:     0.5,
			AdaptiveThreshold:       60,
			ForceTrigger:            120,
		},
		EnableQuick:        false,
		EnableQuickTimeout: false,
		ExpFilterAlpha:     0.8,
	}
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("GRIBE_PORT", "8080"),
			AllowedOrigins: getEnvSlice("GRIBE_ALLOWED_ORIGINS", nil), // nil = wildcard
		},
		Auth: AuthConfig{
			APIKeys: getEnvSlice("GRIBE_API_KEYS", nil), // nil = no auth required
		},
		Audio: AudioConfig{
			Provider:             getEnv("GRIBE_ASR_PROVIDER", "sherpa-onnx"),
			MaxBufferSize:        getEnvInt("GRIBE_MAX_AUDIO_BUFFER_SIZE", 15*1024*1024), // 15MB default
			TranscriptionTimeout: time.Duration(getEnvInt("GRIBE_TRANSCRIPTION_TIMEOUT_SECONDS", 30)) * time.Second,
			SampleRate:           getEnvInt("GRIBE_SAMPLE_RATE", 16000),
			SentenceSplitEnable:  getEnvBool("GRIBE_SENTENCE_SPLIT_ENABLE", true),
			MinDurationForSplit:  3.0,
			ASRLanguage:          getEnv("GRIBE_ASR_LANGUAGE", "zh"),
		},
		Rate: RateLimitConfig{
			MaxConnectionsPerIP: getEnvInt("GRIBE_MAX_CONNECTIONS_PER_IP", 10),
			RequestsPerSecond:   getEnvInt("GRIBE_REQUESTS_PER_SECOND", 100),
			BurstSize:           getEnvInt("GRIBE_RATE_BURST_SIZE", 50),
			CleanupInterval:     time.Duration(getEnvInt("GRIBE_RATE_CLEANUP_SECONDS", 60)) * time.Second,
		},
		Buffer: BufferConfig{
			LongBufferDuration: 300.0,
		},
		Speaker: SpeakerConfig{
			ThresholdBase:      0.25,
			MaxEmbeddings:      3,
			MinChunkDuration:   3.0,
			MaxChunkDuration:   20.0,
			SpeakerMergeFactor: 1.25,
			DataDir:            getEnv("GRIBE_SPEAKER_DATA_DIR", "./data"),
		},
		VADModel: defaultVADModel(),
		VADManager: VADManagerConfig{
			CleanupInterval: 60 * time.Second,
		},
		Events: EventsConfig{
			MaxQueueSize: 1000,
		},
	}
}

// IsOriginAllowed checks if the given origin is allowed
func (c *Config) IsOriginAllowed(origin string) bool {
	// If no origins configured, allow all (wildcard)
	if len(c.Server.AllowedOrigins) == 0 {
		return true
	}

	// Check if origin matches any allowed origin
	for _, allowed := range c.Server.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if allowed == origin {
			return true
		}
	}
	return false
}

// IsAPIKeyValid checks if the given API key is valid
func (c *Config) IsAPIKeyValid(apiKey string) bool {
	// If no API keys configured, allow all (no auth required)
	if len(c.Auth.APIKeys) == 0 {
		return true
	}

	// Check if key matches any configured key
	for _, validKey := range c.Auth.APIKeys {
		if validKey == apiKey {
			return true
		}
	}
	return false
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Split by comma and trim whitespace
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// LoadYAML loads the configuration from a YAML file
func LoadYAML(path string) (*YAMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg YAMLConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithYAML loads configuration from environment variables and YAML file
func LoadWithYAML(yamlPath string) *Config {
	// 1. Start with environment variables (and defaults)
	cfg := Load()

	// 2. Try to load YAML config
	yamlCfg, err := LoadYAML(yamlPath)
	if err != nil {
		log.Printf("Warning: Could not load YAML config from %s: %v", yamlPath, err)
		// Set defaults for ASR config if YAML fails
		cfg.ASR = ASRConfig{
			Provider:   "cpu",
			NumThreads: 4,
			ModelsDir:  "./models",
			Models:     make(map[string]ModelConfig),
		}
		return cfg
	}

	// 3. Override with YAML values if present
	if yamlCfg.Server.Port != "" {
		cfg.Server.Port = yamlCfg.Server.Port
	}
	if len(yamlCfg.Server.AllowedOrigins) > 0 {
		cfg.Server.AllowedOrigins = yamlCfg.Server.AllowedOrigins
	}

	if len(yamlCfg.Auth.APIKeys) > 0 {
		cfg.Auth.APIKeys = yamlCfg.Auth.APIKeys
	}

	if yamlCfg.Audio.Provider != "" {
		cfg.Audio.Provider = yamlCfg.Audio.Provider
	}
	if yamlCfg.Audio.MaxBufferSize > 0 {
		cfg.Audio.MaxBufferSize = yamlCfg.Audio.MaxBufferSize
	}
	if yamlCfg.Audio.TranscriptionTimeout > 0 {
		cfg.Audio.TranscriptionTimeout = yamlCfg.Audio.TranscriptionTimeout
	}
	if yamlCfg.Audio.SampleRate > 0 {
		cfg.Audio.SampleRate = yamlCfg.Audio.SampleRate
	}
	if yamlCfg.Audio.ASRLanguage != "" {
		cfg.Audio.ASRLanguage = yamlCfg.Audio.ASRLanguage
	}
	if yamlCfg.Audio.MinDurationForSplit > 0 {
		cfg.Audio.MinDurationForSplit = yamlCfg.Audio.MinDurationForSplit
	}
	cfg.Audio.SentenceSplitEnable = yamlCfg.Audio.SentenceSplitEnable || cfg.Audio.SentenceSplitEnable

	if yamlCfg.Rate.MaxConnectionsPerIP > 0 {
		cfg.Rate.MaxConnectionsPerIP = yamlCfg.Rate.MaxConnectionsPerIP
	}
	if yamlCfg.Rate.RequestsPerSecond > 0 {
		cfg.Rate.RequestsPerSecond = yamlCfg.Rate.RequestsPerSecond
	}
	if yamlCfg.Rate.BurstSize > 0 {
		cfg.Rate.BurstSize = yamlCfg.Rate.BurstSize
	}
	if yamlCfg.Rate.CleanupInterval > 0 {
		cfg.Rate.CleanupInterval = yamlCfg.Rate.CleanupInterval
	}

	if yamlCfg.Buffer.LongBufferDuration > 0 {
		cfg.Buffer.LongBufferDuration = yamlCfg.Buffer.LongBufferDuration
	}

	if yamlCfg.Speaker.ThresholdBase > 0 {
		cfg.Speaker.ThresholdBase = yamlCfg.Speaker.ThresholdBase
	}
	if yamlCfg.Speaker.MaxEmbeddings > 0 {
		cfg.Speaker.MaxEmbeddings = yamlCfg.Speaker.MaxEmbeddings
	}
	if yamlCfg.Speaker.MinChunkDuration > 0 {
		cfg.Speaker.MinChunkDuration = yamlCfg.Speaker.MinChunkDuration
	}
	if yamlCfg.Speaker.MaxChunkDuration > 0 {
		cfg.Speaker.MaxChunkDuration = yamlCfg.Speaker.MaxChunkDuration
	}
	if yamlCfg.Speaker.SpeakerMergeFactor > 0 {
		cfg.Speaker.SpeakerMergeFactor = yamlCfg.Speaker.SpeakerMergeFactor
	}
	if yamlCfg.Speaker.DataDir != "" {
		cfg.Speaker.DataDir = yamlCfg.Speaker.DataDir
	}
	if yamlCfg.Speaker.EmbeddingModel != "" {
		cfg.Speaker.EmbeddingModel = yamlCfg.Speaker.EmbeddingModel
	}

	if (yamlCfg.VADModel != VADModelConfig{}) {
		cfg.VADModel = yamlCfg.VADModel
	}
	if yamlCfg.VADManager.CleanupInterval > 0 {
		cfg.VADManager.CleanupInterval = yamlCfg.VADManager.CleanupInterval
	}
	if yamlCfg.Events.MaxQueueSize > 0 {
		cfg.Events.MaxQueueSize = yamlCfg.Events.MaxQueueSize
	}

	// ASR section is mostly YAML-only anyway
	cfg.ASR = yamlCfg.ASR

	// Set ASR defaults if missing in YAML
	if cfg.ASR.Provider == "" {
		cfg.ASR.Provider = "cpu"
	}
	if cfg.ASR.NumThreads == 0 {
		cfg.ASR.NumThreads = 4
	}
	if cfg.ASR.ModelsDir == "" {
		cfg.ASR.ModelsDir = "./models"
	}

	return cfg
}

// WorkerID returns a short identity for this process instance, generated
// once and persisted under dataDir so restarts keep the same id. It is
// logged once at startup. Adapted from the original's
// generate_worker_id/restore-from-file pattern, dropping its Redis-backed
// registration since Redis is out of scope here.
func WorkerID(dataDir string) string {
	path := dataDir + "/worker_id"
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id
		}
	}

	id := generateWorkerID()
	if err := os.MkdirAll(dataDir, 0o755); err == nil {
		if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
			log.Printf("[WARN] could not persist worker id to %s: %v", path, err)
		}
	}
	return id
}

func generateWorkerID() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("worker-%d", os.Getpid())
	}
	return "worker-" + hex.EncodeToString(buf)
}
