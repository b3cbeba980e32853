package processor

import (
	"context"
	"log"
	"strings"

	"github.com/see2023/meetingcore/internal/providers"
	"github.com/see2023/meetingcore/internal/textsplit"
)

// longSegmentStart opens a new long VAD span, offsetting the recorded start
// two frames earlier to catch the onset the detector's smoothing delayed.
// Serialised by longVADLock, matching the source's @with_vad_lock('long').
func (p *Processor) longSegmentStart(timestamp, frameDuration float64) {
	p.longVADLock.Lock()
	defer p.longVADLock.Unlock()

	start := timestamp - frameDuration*2
	p.mu.Lock()
	p.currentLongSegment = &longSegment{startTime: start}
	p.mu.Unlock()
	log.Printf("[INFO] long segment started at %.3f, segment start at %.3f", timestamp, start)
}

// longSegmentUpdate moves the open long segment's start time forward, used
// after a confirmed mid-segment speaker split.
func (p *Processor) longSegmentUpdate(timestamp float64) {
	p.longVADLock.Lock()
	defer p.longVADLock.Unlock()

	p.mu.Lock()
	if p.currentLongSegment != nil {
		p.currentLongSegment.startTime = timestamp
		log.Printf("[DEBUG] long segment updated, new start time: %.3f", timestamp)
	}
	p.mu.Unlock()
}

// longSegmentEnd finalises the open long segment at timestamp: runs ASR
// over the whole span, and either falls back to a single whole-segment
// result or splits into sentences, merges by speaker, and emits one final
// event per merged segment.
func (p *Processor) longSegmentEnd(ctx context.Context, timestamp float64) {
	p.longVADLock.Lock()
	defer p.longVADLock.Unlock()

	p.mu.Lock()
	seg := p.currentLongSegment
	p.mu.Unlock()
	if seg == nil {
		return
	}

	longAudio, actualStart, actualEnd := p.buffer.Read(seg.startTime, timestamp)
	actualDuration := actualEnd - actualStart
	log.Printf("[INFO] long segment ended at %.3f, actual_duration: %.3f", timestamp, actualDuration)

	asrResult, err := p.asr.Recognize(ctx, longAudio, p.cfg.SampleRate, p.cfg.ASRLanguage)
	if err != nil {
		log.Printf("[ERROR] recognize long segment: %v", err)
		asrResult = &providers.ASRResult{}
	}

	if asrResult.Text == "" || actualDuration < p.cfg.MinDurationForSplit || !p.cfg.SentenceSplitEnable {
		log.Printf("[INFO] asr result empty or duration too short, fallback to whole segment")
		p.finishWholeSegment(ctx, longAudio, actualStart, actualEnd, asrResult)
		p.clearLongSegment(timestamp)
		return
	}

	sentences := p.splitSentencesWithTimestamps(asrResult.Text, asrResult.TimestampsMs, actualStart)
	if len(sentences) == 0 {
		log.Printf("[WARN] sentence splitting failed, fallback to whole segment")
		p.finishWholeSegment(ctx, longAudio, actualStart, actualEnd, asrResult)
		p.clearLongSegment(timestamp)
		return
	}

	merged := p.mergeSentencesBySpeaker(sentences, timestamp)
	p.emitMergedSegments(ctx, merged, asrResult, actualStart)

	p.clearLongSegment(timestamp)
	log.Printf("[INFO] processed long segment, split into %d segments", len(merged))
}

func (p *Processor) clearLongSegment(timestamp float64) {
	p.mu.Lock()
	p.currentLongSegment = nil
	p.lastProcessEnd = &timestamp
	p.mu.Unlock()
}

// finishWholeSegment identifies the speaker over the entire long audio
// (allowing adaptive-threshold/embedding updates) and emits one final event.
func (p *Processor) finishWholeSegment(ctx context.Context, longAudio []int16, start, end float64, asrResult *providers.ASRResult) {
	speakerID, err := p.speakers.IdentifyFromBuffer(longAudio, p.cfg.SampleRate, true)
	if err != nil {
		log.Printf("[ERROR] identify speaker for whole segment: %v", err)
	}
	p.sendTranscription(start, end, speakerID, asrResult, true)
}

// mergedSegment is one contiguous run of sentences attributed to the same
// speaker by reference-audio distance, before the second-pass speaker_id==0
// resolution.
type mergedSegment struct {
	start, end float64
	text       string
	speakerID  int
}

// mergeSentencesBySpeaker walks sentences in order, comparing each new
// sentence's audio against a sliding reference (the previous sentence's
// audio, capped to its last 10s) via embedding distance, and starts a new
// merged segment whenever that distance exceeds speakerMergeThreshold.
func (p *Processor) mergeSentencesBySpeaker(sentences []sentenceSpan, segmentEnd float64) []mergedSegment {
	var merged []mergedSegment
	var currentStart float64
	var currentText []string
	var refAudio []int16
	haveCurrent := false

	maxRefSamples := 10 * p.cfg.SampleRate

	for _, s := range sentences {
		sentAudio, _, _ := p.buffer.Read(s.start, s.end)

		var distance float64
		if refAudio != nil {
			d := p.speakers.SegmentDistance(sentAudio, refAudio, p.cfg.SampleRate)
			if d >= 10.0 {
				log.Printf("[WARN] invalid distance detected, treating as same speaker")
				d = 0.0
			}
			distance = d
		} else {
			distance = 1.0
		}

		if !haveCurrent || distance > p.cfg.SpeakerMergeThreshold {
			if haveCurrent {
				merged = append(merged, mergedSegment{start: currentStart, end: s.start, text: strings.Join(currentText, " ")})
			}
			refAudio = sentAudio
			currentStart = s.start
			currentText = []string{s.text}
			haveCurrent = true
		} else {
			currentText = append(currentText, s.text)
			refAudio = sentAudio
		}

		if len(refAudio) > maxRefSamples {
			refAudio = refAudio[len(refAudio)-maxRefSamples:]
		}
	}

	if haveCurrent {
		merged = append(merged, mergedSegment{start: currentStart, end: segmentEnd, text: strings.Join(currentText, " ")})
	}

	// First pass: identify each merged segment's speaker, allowing updates.
	for i := range merged {
		audioSlice, _, _ := p.buffer.Read(merged[i].start, merged[i].end)
		id, err := p.speakers.IdentifyFromBuffer(audioSlice, p.cfg.SampleRate, true)
		if err != nil {
			log.Printf("[ERROR] identify speaker for merged segment %d: %v", i, err)
		}
		merged[i].speakerID = id
	}

	// Second pass: resolve speaker_id==0 by nearest adjacent non-zero
	// neighbour, single-pass and non-transitive (preserved per design notes).
	for i := range merged {
		if merged[i].speakerID != 0 {
			continue
		}
		currentAudio, _, _ := p.buffer.Read(merged[i].start, merged[i].end)

		bestID := 0
		bestDistance := -1.0
		haveBest := false

		if i > 0 && merged[i-1].speakerID != 0 {
			prevAudio, _, _ := p.buffer.Read(merged[i-1].start, merged[i-1].end)
			d := p.speakers.SegmentDistance(currentAudio, prevAudio, p.cfg.SampleRate)
			bestID, bestDistance, haveBest = merged[i-1].speakerID, d, true
		}
		if i < len(merged)-1 && merged[i+1].speakerID != 0 {
			nextAudio, _, _ := p.buffer.Read(merged[i+1].start, merged[i+1].end)
			d := p.speakers.SegmentDistance(currentAudio, nextAudio, p.cfg.SampleRate)
			if !haveBest || d < bestDistance {
				bestID, haveBest = merged[i+1].speakerID, true
			}
		}

		if haveBest {
			log.Printf("[INFO] adjusted speaker id for segment %d from 0 to %d based on distance", i, bestID)
			merged[i].speakerID = bestID
		} else {
			log.Printf("[WARN] cannot adjust speaker id for isolated segment %d", i)
		}
	}

	return merged
}

// emitMergedSegments sends one final TranscriptionEvent per merged segment,
// projecting the original ASR token ranges onto segment-relative
// milliseconds.
func (p *Processor) emitMergedSegments(ctx context.Context, merged []mergedSegment, asrResult *providers.ASRResult, actualSegmentStart float64) {
	for _, seg := range merged {
		offsetMs := int((seg.start - actualSegmentStart) * 1000)
		endOffsetMs := int((seg.end - actualSegmentStart) * 1000)

		var adjusted [][2]int
		for _, ts := range asrResult.TimestampsMs {
			if ts[0] >= offsetMs && ts[1] <= endOffsetMs {
				adjusted = append(adjusted, [2]int{ts[0] - offsetMs, ts[1] - offsetMs})
			}
		}

		p.sendTranscription(seg.start, seg.end, seg.speakerID, &providers.ASRResult{Text: seg.text, TimestampsMs: adjusted}, true)
		log.Printf("[INFO] merged segment: %.3f-%.3f speaker:%d", seg.start, seg.end, seg.speakerID)
	}
}

// sentenceSpan is one sentence found by splitSentencesWithTimestamps.
type sentenceSpan struct {
	text         string
	start, end   float64
	timestampsMs [][2]int
}

// splitSentencesWithTimestamps tokenizes text, aligns tokens 1:1 against
// per-token [start,end]ms ranges, and breaks at sentence-terminating
// punctuation. Sentences shorter than MinSentenceDuration are merged
// forward into the next sentence (or backward into the previous one, for a
// short final remainder) via the pending-sentence accumulator, matching the
// source's merge logic exactly.
func (p *Processor) splitSentencesWithTimestamps(text string, timestampsMs [][2]int, audioStart float64) []sentenceSpan {
	tokens := textsplit.Split(text, true)
	if abs(len(tokens)-len(timestampsMs)) > 1 {
		log.Printf("[WARN] token count mismatch too large: text tokens %d vs timestamps %d", len(tokens), len(timestampsMs))
		return nil
	}
	if len(tokens) != len(timestampsMs) {
		log.Printf("[INFO] minor token count mismatch: %d vs %d, using shorter length", len(tokens), len(timestampsMs))
		minLen := len(tokens)
		if len(timestampsMs) < minLen {
			minLen = len(timestampsMs)
		}
		tokens = tokens[:minLen]
		timestampsMs = timestampsMs[:minLen]
	}

	minSentenceDuration := p.cfg.MinSentenceDuration

	var sentences []sentenceSpan
	var currentTokens []textsplit.Token
	var currentTimestamps [][2]int
	var pending *sentenceSpan

	flushCurrent := func() sentenceSpan {
		start := audioStart + float64(currentTimestamps[0][0])/1000.0
		end := audioStart + float64(currentTimestamps[len(currentTimestamps)-1][1])/1000.0
		var sb strings.Builder
		for _, t := range currentTokens {
			sb.WriteString(t.Text)
		}
		return sentenceSpan{text: strings.TrimSpace(sb.String()), start: start, end: end, timestampsMs: append([][2]int(nil), currentTimestamps...)}
	}

	for i, tok := range tokens {
		ts := timestampsMs[i]
		if len(currentTokens) > 0 && tok.IsEnglishWord && currentTokens[len(currentTokens)-1].IsEnglishWord {
			currentTokens = append(currentTokens, textsplit.Token{Text: " "})
			currentTimestamps = append(currentTimestamps, ts)
		}
		currentTokens = append(currentTokens, tok)
		currentTimestamps = append(currentTimestamps, ts)

		if tok.IsPunctuation && textsplit.SentenceTerminators[tok.Text] {
			sentence := flushCurrent()
			duration := sentence.end - sentence.start

			if duration < minSentenceDuration {
				if pending == nil {
					pending = &sentence
				} else {
					mergedText := pending.text + sentence.text
					mergedStart := pending.start
					mergedTimestamps := append(append([][2]int(nil), pending.timestampsMs...), sentence.timestampsMs...)
					if sentence.end-mergedStart >= minSentenceDuration {
						sentences = append(sentences, sentenceSpan{text: mergedText, start: mergedStart, end: sentence.end, timestampsMs: mergedTimestamps})
						pending = nil
					} else {
						pending = &sentenceSpan{text: mergedText, start: mergedStart, end: sentence.end, timestampsMs: mergedTimestamps}
					}
				}
			} else {
				if pending != nil {
					sentences = append(sentences, *pending)
					pending = nil
				}
				sentences = append(sentences, sentence)
			}

			currentTokens = nil
			currentTimestamps = nil
		}
	}

	if len(currentTokens) > 0 {
		sentence := flushCurrent()
		duration := sentence.end - sentence.start

		if duration < minSentenceDuration {
			switch {
			case len(sentences) > 0:
				prev := sentences[len(sentences)-1]
				if pending != nil {
					prev = sentenceSpan{text: prev.text + pending.text, start: prev.start, end: pending.end,
						timestampsMs: append(append([][2]int(nil), prev.timestampsMs...), pending.timestampsMs...)}
					pending = nil
				}
				sentences = sentences[:len(sentences)-1]
				sentences = append(sentences, sentenceSpan{
					text:         prev.text + sentence.text,
					start:        prev.start,
					end:          sentence.end,
					timestampsMs: append(append([][2]int(nil), prev.timestampsMs...), sentence.timestampsMs...),
				})
			case pending != nil:
				sentences = append(sentences, sentenceSpan{
					text:         pending.text + sentence.text,
					start:        pending.start,
					end:          sentence.end,
					timestampsMs: append(append([][2]int(nil), pending.timestampsMs...), sentence.timestampsMs...),
				})
				pending = nil
			default:
				sentences = append(sentences, sentence)
			}
		} else {
			if pending != nil {
				sentences = append(sentences, sentenceSpan{
					text:         pending.text + sentence.text,
					start:        pending.start,
					end:          sentence.end,
					timestampsMs: append(append([][2]int(nil), pending.timestampsMs...), sentence.timestampsMs...),
				})
				pending = nil
			} else {
				sentences = append(sentences, sentence)
			}
		}
	} else if pending != nil {
		if len(sentences) > 0 {
			prev := sentences[len(sentences)-1]
			sentences[len(sentences)-1] = sentenceSpan{text: prev.text + pending.text, start: prev.start, end: pending.end,
				timestampsMs: append(append([][2]int(nil), prev.timestampsMs...), pending.timestampsMs...)}
		} else {
			sentences = append(sentences, *pending)
		}
	}

	return sentences
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
