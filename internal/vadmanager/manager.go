// Package vadmanager keeps the rolling history of VAD segments annotated
// with ASR and speaker results, as described in SPEC_FULL.md §4.7.
package vadmanager

import (
	"math"

	"github.com/see2023/meetingcore/internal/vad"
)

// Segment records one VAD-bounded span of audio and its eventual
// recognition results. Immutable once UpdateRecognition has been called.
type Segment struct {
	EventType      vad.Event
	StartTime      float64
	EndTime        float64
	IsProcessed    bool
	SpeakerID      int
	ASRText        string
	ASRTimestampsMs []int // token start times, ms, relative to segment start
}

// UpdateRecognition annotates a segment with its ASR and speaker results.
func (s *Segment) UpdateRecognition(speakerID int, text string, timestampsMs []int) {
	s.SpeakerID = speakerID
	s.ASRText = text
	s.ASRTimestampsMs = timestampsMs
	s.IsProcessed = true
}

// Manager is an append-only history of Segments.
type Manager struct {
	segments []Segment
}

// NewManager creates an empty segment history.
func NewManager() *Manager {
	return &Manager{}
}

// Add appends a segment to the history.
func (m *Manager) Add(seg Segment) {
	m.segments = append(m.segments, seg)
}

// Recent returns the last count segments, or nil if fewer than count exist.
func (m *Manager) Recent(count int) []Segment {
	if len(m.segments) < count {
		return nil
	}
	return m.segments[len(m.segments)-count:]
}

// Cleanup drops segments older than minTime.
func (m *Manager) Cleanup(minTime float64) {
	kept := m.segments[:0]
	for _, s := range m.segments {
		if s.EndTime >= minTime {
			kept = append(kept, s)
		}
	}
	m.segments = kept
}

// FindNearestShortPause returns the EndTime of the SHORT_PAUSE/SHORT_TIMEOUT
// segment whose EndTime is closest to targetTime (on either side) within
// maxDistance, or false if none qualifies. Segments are scanned newest
// first and the scan stops at the first such segment farther than
// maxDistance. Supplements the core per SPEC_FULL.md §4.7.
func (m *Manager) FindNearestShortPause(targetTime, maxDistance float64) (float64, bool) {
	nearest := 0.0
	minDistance := math.Inf(1)
	found := false

	for i := len(m.segments) - 1; i >= 0; i-- {
		seg := m.segments[i]
		if seg.EventType != vad.ShortPause && seg.EventType != vad.ShortTimeout {
			continue
		}
		distance := math.Abs(targetTime - seg.EndTime)
		if distance > maxDistance {
			break
		}
		if distance < minDistance {
			minDistance = distance
			nearest = seg.EndTime
			found = true
		}
	}
	return nearest, found
}

// ContextSegments returns the segments ending within window before
// targetTime, and those starting within window after it.
func (m *Manager) ContextSegments(targetTime, window float64) (before, after []Segment) {
	for _, seg := range m.segments {
		switch {
		case seg.EndTime < targetTime:
			if targetTime-seg.EndTime <= window {
				before = append(before, seg)
			}
		case seg.StartTime > targetTime:
			if seg.StartTime-targetTime <= window {
				after = append(after, seg)
			}
		}
	}
	return before, after
}

// Len reports the number of retained segments.
func (m *Manager) Len() int {
	return len(m.segments)
}
