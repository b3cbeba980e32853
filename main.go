package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/see2023/meetingcore/internal/audio"
	"github.com/see2023/meetingcore/internal/config"
	"github.com/see2023/meetingcore/internal/delivery/websocket"
	"github.com/see2023/meetingcore/internal/events"
	"github.com/see2023/meetingcore/internal/processor"
	"github.com/see2023/meetingcore/internal/providers"
	"github.com/see2023/meetingcore/internal/providers/mock"
	"github.com/see2023/meetingcore/internal/providers/sherpa"
	"github.com/see2023/meetingcore/internal/speaker"
	"github.com/see2023/meetingcore/internal/vad"
	"github.com/see2023/meetingcore/internal/vadmanager"
)

func main() {
	cfg := config.Load()
	yamlPath := getEnvOr("GRIBE_CONFIG", "config.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		cfg = config.LoadWithYAML(yamlPath)
	}

	workerID := config.WorkerID(cfg.Speaker.DataDir)
	log.Printf("Starting meetingcore speech analytics core, worker=%s", workerID)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("ASR provider: %s", cfg.Audio.Provider)

	registry := providers.NewRegistry()
	registerASRBackends(registry, cfg)

	asrProvider, err := registry.GetASR(providers.Type(cfg.Audio.Provider))
	if err != nil {
		log.Fatalf("load ASR provider: %v", err)
	}

	embedder, vadProber, err := buildEmbedderAndVAD(cfg)
	if err != nil {
		log.Fatalf("load speaker/vad providers: %v", err)
	}

	buf := audio.NewBuffer(cfg.Audio.SampleRate, cfg.Buffer.LongBufferDuration)

	detector := vad.NewDetector(
		vadProber,
		cfg.Audio.SampleRate,
		toLevelConfig(cfg.VADModel.Quick),
		toLevelConfig(cfg.VADModel.Long),
		cfg.VADModel.ExpFilterAlpha,
	)

	vm := vadmanager.NewManager()

	speakerEngine := speaker.NewEngine(embedder, speaker.Config{
		BaseThreshold:    cfg.Speaker.ThresholdBase,
		MaxEmbeddings:    cfg.Speaker.MaxEmbeddings,
		MinChunkDuration: cfg.Speaker.MinChunkDuration,
		MaxChunkDuration: cfg.Speaker.MaxChunkDuration,
		DataDir:          cfg.Speaker.DataDir,
	})
	if err := speakerEngine.SwitchMeeting(0); err != nil {
		log.Fatalf("initialise speaker registry: %v", err)
	}

	out := events.NewChannel(cfg.Events.MaxQueueSize)

	proc := processor.New(processor.Config{
		SampleRate:            cfg.Audio.SampleRate,
		ASRLanguage:           cfg.Audio.ASRLanguage,
		EnableQuick:           cfg.VADModel.EnableQuick,
		EnableQuickTimeout:    cfg.VADModel.EnableQuickTimeout,
		SentenceSplitEnable:   cfg.Audio.SentenceSplitEnable,
		MinDurationForSplit:   cfg.Audio.MinDurationForSplit,
		MinSentenceDuration:   cfg.Speaker.MinChunkDuration,
		SpeakerMergeThreshold: cfg.Speaker.ThresholdBase * cfg.Speaker.SpeakerMergeFactor,
		LongBufferDuration:    cfg.Buffer.LongBufferDuration,
		CleanupInterval:       cfg.VADManager.CleanupInterval,
	}, buf, detector, vm, speakerEngine, asrProvider, out)
	proc.Start()

	wsHandler := websocket.NewHandler(proc, speakerEngine, out, cfg)

	http.Handle("/v1/realtime", wsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	addr := ":" + cfg.Server.Port
	server := &http.Server{Addr: addr}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sig := <-quit
	log.Printf("Received signal: %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server force shutdown: %v", err)
	}

	proc.Stop()
	wsHandler.Close()
	if err := registry.Close(); err != nil {
		log.Printf("Error closing ASR providers: %v", err)
	}
	log.Println("Server stopped")
}

func registerASRBackends(registry *providers.Registry, cfg *config.Config) {
	registry.RegisterASR(providers.TypeMock, func() (providers.ASRProvider, error) {
		return mock.NewASR(), nil
	})
	registry.RegisterASR(providers.TypeSherpaOnnx, func() (providers.ASRProvider, error) {
		model, ok := cfg.ASR.Models[cfg.ASR.DefaultModel]
		if !ok {
			return nil, &missingModelError{name: cfg.ASR.DefaultModel}
		}
		return sherpa.NewASR(sherpa.ASRConfig{
			Provider:   cfg.ASR.Provider,
			NumThreads: cfg.ASR.NumThreads,
			ModelsDir:  cfg.ASR.ModelsDir,
			ModelName:  cfg.ASR.DefaultModel,
			Encoder:    model.Encoder,
			Decoder:    model.Decoder,
			Joiner:     model.Joiner,
			Tokens:     model.Tokens,
			Languages:  model.Languages,
		})
	})
}

type missingModelError struct{ name string }

func (e *missingModelError) Error() string {
	return "no ASR model configured under asr.models[" + e.name + "]"
}

func buildEmbedderAndVAD(cfg *config.Config) (speaker.Embedder, vad.Prober, error) {
	if cfg.Audio.Provider == "mock" {
		return mock.NewEmbedder(cfg.Speaker.MinChunkDuration), mock.NewVAD(), nil
	}

	embedder, err := sherpa.NewEmbedder(sherpa.EmbedderConfig{
		Model:      cfg.Speaker.EmbeddingModel,
		NumThreads: cfg.ASR.NumThreads,
		Provider:   cfg.ASR.Provider,
	})
	if err != nil {
		return nil, nil, err
	}

	prober, err := sherpa.NewVAD(sherpa.VADConfig{
		Model:      cfg.VADModel.ModelPath,
		SampleRate: cfg.Audio.SampleRate,
		NumThreads: cfg.ASR.NumThreads,
		Provider:   cfg.ASR.Provider,
	})
	if err != nil {
		return nil, nil, err
	}
	return embedder, prober, nil
}

func toLevelConfig(c config.VADLevelConfig) vad.LevelConfig {
	return vad.LevelConfig{
		MinSpeechDuration:       c.MinSpeechDuration,
		MinSilenceDuration:      c.MinSilenceDuration,
		MinSilenceDurationShort: c.MinSilenceDurationShort,
		ActivationThreshold:     c.ActivationThreshold,
		AdaptiveThreshold:       c.AdaptiveThreshold,
		ForceTrigger:            c.ForceTrigger,
	}
}

func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
