// Package processor implements the orchestrator that turns raw PCM frames
// into transcription events: VAD dispatch, long/short segment lifecycle,
// speaker identification and sentence splitting. Grounded on the original
// audio_processor.py's AudioProcessor, translated from asyncio tasks and
// an asyncio.Lock pair into goroutines/errgroup and two sync.Mutex locks.
package processor

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/see2023/meetingcore/internal/audio"
	"github.com/see2023/meetingcore/internal/events"
	"github.com/see2023/meetingcore/internal/providers"
	"github.com/see2023/meetingcore/internal/speaker"
	"github.com/see2023/meetingcore/internal/vad"
	"github.com/see2023/meetingcore/internal/vadmanager"
)

// Config holds the processor's runtime tunables, assembled from the
// config package's audio/vad/speaker/sentence_split sections.
type Config struct {
	SampleRate int

	ASRLanguage string

	EnableQuick        bool
	EnableQuickTimeout bool

	SentenceSplitEnable    bool
	MinDurationForSplit    float64
	MinSentenceDuration    float64
	SpeakerMergeThreshold  float64
	LongBufferDuration     float64
	CleanupInterval        time.Duration
	MaxSearchDistance      float64
}

// longSegment tracks the currently-open long VAD span; only its start time
// is retained, matching the source's minimal state.
type longSegment struct {
	startTime float64
}

// Processor is the audio processing pipeline. One Processor is created per
// process and shared by every WebSocket connection; frames from all
// connections feed the same buffer, detector and segment state.
type Processor struct {
	cfg Config

	buffer     *audio.Buffer
	detector   *vad.Detector
	vadManager *vadmanager.Manager
	speakers   *speaker.Engine
	asr        providers.ASRProvider
	out        *events.Channel

	mu               sync.Mutex
	isProcessing     bool
	currentSpeakerID int

	longVADLock sync.Mutex
	shortVADLock sync.Mutex

	currentLongSegment *longSegment
	lastShortVADEnd    *float64
	lastProcessEnd     *float64

	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// New builds a Processor wired to the given buffer, detector, vad manager,
// speaker engine, ASR provider and outgoing event channel.
func New(cfg Config, buf *audio.Buffer, detector *vad.Detector, vm *vadmanager.Manager, speakers *speaker.Engine, asr providers.ASRProvider, out *events.Channel) *Processor {
	return &Processor{
		cfg:        cfg,
		buffer:     buf,
		detector:   detector,
		vadManager: vm,
		speakers:   speakers,
		asr:        asr,
		out:        out,
	}
}

// Start begins periodic cleanup. Further calls while running are no-ops.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.isProcessing {
		return
	}
	p.isProcessing = true
	p.stopCleanup = make(chan struct{})
	p.cleanupDone = make(chan struct{})
	go p.cleanupLoop()
	log.Printf("[INFO] audio processor started")
}

// Stop halts cleanup and clears the audio buffer.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.isProcessing {
		p.mu.Unlock()
		return
	}
	p.isProcessing = false
	stopCh := p.stopCleanup
	doneCh := p.cleanupDone
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
	p.buffer.Clear()
	log.Printf("[INFO] audio processor stopped")
}

func (p *Processor) cleanupLoop() {
	defer close(p.cleanupDone)
	ticker := time.NewTicker(p.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCleanup:
			return
		case <-ticker.C:
			for !p.runCleanup() {
				log.Printf("[WARN] cleanup failed, retrying in %s", cleanupRetryBackoff)
				select {
				case <-p.stopCleanup:
					return
				case <-time.After(cleanupRetryBackoff):
				}
			}
		}
	}
}

// cleanupRetryBackoff is the wait before a failed cleanup pass is retried.
const cleanupRetryBackoff = 60 * time.Second

// runCleanup performs one cleanup pass and reports whether it completed
// without a panic.
func (p *Processor) runCleanup() (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] cleanup panic recovered: %v", r)
			ok = false
		}
	}()
	_, newest := p.buffer.TimeRange()
	p.vadManager.Cleanup(newest - p.cfg.LongBufferDuration)

	before := p.buffer.GetStats()
	if before.TotalDuration > p.cfg.LongBufferDuration {
		log.Printf("[WARN] buffer too large: %.1fs, %d frames, %d bytes",
			before.TotalDuration, before.FrameCount, before.MemoryUsage)
	}
	p.buffer.Cleanup()
	after := p.buffer.GetStats()
	if after.FrameCount < before.FrameCount {
		log.Printf("[INFO] cleaned up buffer: %d -> %d frames", before.FrameCount, after.FrameCount)
	}
	return true
}

// ProcessAudio ingests one PCM frame, updates the buffer, runs VAD, and
// dispatches on the resulting event. timestamp is the client-supplied
// end-of-frame wall-clock time.
func (p *Processor) ProcessAudio(ctx context.Context, samples []int16, timestamp float64) error {
	p.mu.Lock()
	active := p.isProcessing
	p.mu.Unlock()
	if !active {
		return nil
	}

	frameDuration := float64(len(samples)) / float64(p.cfg.SampleRate)
	if frameDuration > 0.2 {
		log.Printf("[WARN] audio frame too long: %.1fms", frameDuration*1000)
	} else if frameDuration < 0.01 {
		log.Printf("[WARN] audio frame too short: %.1fms", frameDuration*1000)
	}

	p.buffer.Write(samples, frameDuration, timestamp)

	floatSamples := audio.Int16ToFloat32(samples)
	event, err := p.detector.ProcessFrame(floatSamples)
	if err != nil {
		return fmt.Errorf("vad process frame: %w", err)
	}
	if event == vad.NoEvent {
		return nil
	}
	log.Printf("[INFO] processing VAD event: %s", event)

	switch event {
	case vad.SpeechStart:
		p.longSegmentStart(timestamp, frameDuration)
		p.mu.Lock()
		p.lastShortVADEnd = nil
		p.mu.Unlock()

	case vad.ShortPause, vad.ShortTimeout:
		if !p.cfg.EnableQuick {
			return nil
		}
		if event == vad.ShortTimeout && !p.cfg.EnableQuickTimeout {
			log.Printf("[DEBUG] skip short_timeout")
			return nil
		}

		p.mu.Lock()
		var startTime float64
		if p.lastShortVADEnd == nil && p.currentLongSegment != nil {
			startTime = p.currentLongSegment.startTime
		} else if p.lastShortVADEnd != nil {
			startTime = *p.lastShortVADEnd
		} else {
			startTime = timestamp - frameDuration
		}
		p.mu.Unlock()

		if err := p.handleShortVAD(ctx, event, startTime, timestamp); err != nil {
			log.Printf("[ERROR] handle short vad: %v", err)
		}
		if event == vad.ShortPause {
			p.mu.Lock()
			end := timestamp
			p.lastShortVADEnd = &end
			p.mu.Unlock()
		}

	case vad.LongTimeout:
		// not used yet

	case vad.LongPause:
		p.longSegmentEnd(ctx, timestamp)
		p.mu.Lock()
		p.lastShortVADEnd = nil
		p.mu.Unlock()
	}
	return nil
}

// ForceProcessPending finalises any still-open long segment, e.g. when the
// transport stream stops.
func (p *Processor) ForceProcessPending(ctx context.Context) {
	p.mu.Lock()
	open := p.currentLongSegment != nil
	p.mu.Unlock()
	if !open {
		return
	}
	log.Printf("[INFO] force processing pending audio segment due to stream stop")
	p.longSegmentEnd(ctx, nowSeconds())
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// processSegment reads [start,end) from the buffer and runs the core
// ASR+speaker pipeline on it, skipping effectively-empty slices.
func (p *Processor) processSegment(ctx context.Context, start, end float64, isFinal bool) error {
	samples, actualStart, actualEnd := p.buffer.Read(start, end)
	if len(samples) < 100 {
		return nil
	}
	_, err := p.processAudioCore(ctx, samples, actualStart, actualEnd, isFinal)
	return err
}

// processAudioCore runs ASR and speaker identification concurrently
// (mirrors asyncio.gather), emits the result, and returns the resolved
// speaker id.
func (p *Processor) processAudioCore(ctx context.Context, samples []int16, start, end float64, isFinal bool) (int, error) {
	g, gctx := errgroup.WithContext(ctx)

	var speakerID int
	var asrResult *providers.ASRResult

	g.Go(func() error {
		id, err := p.speakers.IdentifyFromBuffer(samples, p.cfg.SampleRate, false)
		if err != nil {
			return fmt.Errorf("identify speaker: %w", err)
		}
		speakerID = id
		return nil
	})
	g.Go(func() error {
		res, err := p.asr.Recognize(gctx, samples, p.cfg.SampleRate, p.cfg.ASRLanguage)
		if err != nil {
			return fmt.Errorf("recognize: %w", err)
		}
		asrResult = res
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}

	p.sendTranscription(start, end, speakerID, asrResult, isFinal)
	return speakerID, nil
}

// sendTranscription pushes a TranscriptionEvent for a non-empty ASR result
// and tracks the current speaker.
func (p *Processor) sendTranscription(start, end float64, speakerID int, result *providers.ASRResult, isFinal bool) {
	text := ""
	var timestamps [][2]int
	if result != nil {
		text = result.Text
		timestamps = result.TimestampsMs
	}
	if text != "" {
		p.out.Put(events.TranscriptionEvent{
			Text:      text,
			SpeakerID: speakerIDString(speakerID),
			StartTime: start,
			EndTime:   end,
			IsFinal:   isFinal,
			Timestamp: timestamps,
		})
		log.Printf("[INFO] sent %s result: %.3f-%.3f", finalLabel(isFinal), start, end)
	}

	if speakerID != 0 {
		p.mu.Lock()
		changed := speakerID != p.currentSpeakerID
		p.currentSpeakerID = speakerID
		p.mu.Unlock()
		if changed {
			log.Printf("[INFO] speaker changed to: %d", speakerID)
		}
	}
}

func finalLabel(isFinal bool) string {
	if isFinal {
		return "final"
	}
	return "partial"
}

// speakerIDString renders a speaker id for the wire protocol: empty string
// for unknown (0), decimal otherwise — matching the source's `speaker_id or
// ''` falsy-zero behaviour.
func speakerIDString(id int) string {
	if id == 0 {
		return ""
	}
	return strconv.Itoa(id)
}
