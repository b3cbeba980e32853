package processor

import (
	"context"
	"fmt"
	"log"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/see2023/meetingcore/internal/providers"
	"github.com/see2023/meetingcore/internal/vad"
	"github.com/see2023/meetingcore/internal/vadmanager"
)

// handleShortVAD processes one SHORT_PAUSE/SHORT_TIMEOUT window: identify
// speaker and ASR concurrently, record a VADSegment, emit a non-final
// transcription, and (for SHORT_TIMEOUT) check for a mid-segment speaker
// switch. Serialised by shortVADLock, matching the source's
// @with_vad_lock('short').
func (p *Processor) handleShortVAD(ctx context.Context, eventType vad.Event, start, end float64) error {
	p.shortVADLock.Lock()
	defer p.shortVADLock.Unlock()

	samples, actualStart, actualEnd := p.buffer.Read(start, end)
	if len(samples) < 100 {
		log.Printf("[WARN] no audio data available for short vad: %.3f -> %.3f", start, end)
		return nil
	}
	log.Printf("[INFO] handle short vad: %.3f -> %.3f, event=%s, samples=%d", start, end, eventType, len(samples))

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
		return err
	}

	segment := vadmanager.Segment{EventType: eventType, StartTime: start, EndTime: end}
	if asrResult != nil {
		startTimestamps := make([]int, len(asrResult.TimestampsMs))
		for i, ts := range asrResult.TimestampsMs {
			startTimestamps[i] = ts[0]
		}
		segment.UpdateRecognition(speakerID, asrResult.Text, startTimestamps)
	}
	p.vadManager.Add(segment)

	if asrResult != nil && asrResult.Text != "" {
		p.sendTranscription(actualStart, actualEnd, speakerID, asrResult, false)
	}

	if eventType == vad.ShortTimeout {
		p.checkSpeakerSwitch(ctx)
	}
	return nil
}

// checkSpeakerSwitch implements the three-segment voiceprint-distance
// triangulation: if the most recent three VAD segments show a clear
// before/after speaker change straddling the middle segment, search its ASR
// token boundaries for the best split point and, if found, reprocess the
// long segment up to that point as final and move the long-segment start
// forward past it.
//
// The source leaves the call site to this method commented out; this
// implementation activates it on every SHORT_TIMEOUT (see design notes).
func (p *Processor) checkSpeakerSwitch(ctx context.Context) {
	recent := p.vadManager.Recent(3)
	if len(recent) < 3 {
		return
	}
	nMinus2, nMinus1, n := recent[0], recent[1], recent[2]

	read := func(s, e float64) []int16 {
		samples, _, _ := p.buffer.Read(s, e)
		return samples
	}

	originalDistance := p.speakers.SegmentDistance(read(nMinus2.StartTime, nMinus2.EndTime), read(n.StartTime, n.EndTime), p.cfg.SampleRate)
	if originalDistance < p.cfg.SpeakerMergeThreshold {
		log.Printf("[DEBUG] original distance %.3f too small, skip splitting", originalDistance)
		return
	}

	distanceWithPrev := p.speakers.SegmentDistance(read(nMinus2.StartTime, nMinus2.EndTime), read(nMinus1.StartTime, nMinus1.EndTime), p.cfg.SampleRate)
	distanceWithNext := p.speakers.SegmentDistance(read(nMinus1.StartTime, nMinus1.EndTime), read(n.StartTime, n.EndTime), p.cfg.SampleRate)
	if distanceWithPrev >= originalDistance && distanceWithNext >= originalDistance {
		log.Printf("[DEBUG] middle segment distances (%.3f, %.3f) both >= original %.3f, skip splitting",
			distanceWithPrev, distanceWithNext, originalDistance)
		return
	}

	var bestSplit float64
	haveSplit := false
	minCombined := math.Inf(1)
	checkPointCount := 0

	for _, ts := range nMinus1.ASRTimestampsMs {
		if ts < 100 {
			continue
		}
		checkPointCount++
		splitTime := nMinus1.StartTime + float64(ts)/1000.0

		part1 := read(nMinus1.StartTime, splitTime)
		part2 := read(splitTime, nMinus1.EndTime)

		distance1 := p.speakers.SegmentDistance(read(nMinus2.StartTime, nMinus2.EndTime), part1, p.cfg.SampleRate)
		distance2 := p.speakers.SegmentDistance(part2, read(n.StartTime, n.EndTime), p.cfg.SampleRate)
		combined := (distance1 + distance2) / 2.0

		if distance1 < originalDistance && distance2 < originalDistance &&
			math.Abs(distance1-distance2) <= 0.2*originalDistance && combined < minCombined {
			minCombined = combined
			bestSplit = splitTime
			haveSplit = true
		}
	}

	if !haveSplit || minCombined >= originalDistance*0.8 {
		log.Printf("[DEBUG] no valid split point found, checked %d candidates, original=%.3f", checkPointCount, originalDistance)
		return
	}

	log.Printf("[INFO] found valid split point at %.3f (checked %d candidates, original=%.3f, combined=%.3f)",
		bestSplit, checkPointCount, originalDistance, minCombined)

	p.mu.Lock()
	var originalStart float64
	hasOpenSegment := p.currentLongSegment != nil
	if hasOpenSegment {
		originalStart = p.currentLongSegment.startTime
	}
	p.mu.Unlock()
	if !hasOpenSegment {
		return
	}

	if err := p.processSegment(ctx, originalStart, bestSplit, true); err != nil {
		log.Printf("[ERROR] reprocess segment up to split point: %v", err)
	}
	p.longSegmentUpdate(bestSplit)
}
