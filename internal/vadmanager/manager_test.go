package vadmanager

import (
	"testing"

	"github.com/see2023/meetingcore/internal/vad"
)

func TestRecentRequiresFullCount(t *testing.T) {
	m := NewManager()
	m.Add(Segment{EventType: vad.ShortPause, StartTime: 0, EndTime: 1})
	if got := m.Recent(3); got != nil {
		t.Fatalf("expected nil when fewer than count segments exist, got %v", got)
	}
	m.Add(Segment{EventType: vad.ShortPause, StartTime: 1, EndTime: 2})
	m.Add(Segment{EventType: vad.ShortPause, StartTime: 2, EndTime: 3})
	got := m.Recent(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(got))
	}
}

func TestCleanupDropsOldSegments(t *testing.T) {
	m := NewManager()
	m.Add(Segment{StartTime: 0, EndTime: 1})
	m.Add(Segment{StartTime: 1, EndTime: 5})
	m.Cleanup(2)
	if m.Len() != 1 {
		t.Fatalf("expected 1 segment after cleanup, got %d", m.Len())
	}
}

func TestFindNearestShortPause(t *testing.T) {
	m := NewManager()
	m.Add(Segment{EventType: vad.ShortPause, StartTime: 0, EndTime: 2})
	m.Add(Segment{EventType: vad.LongPause, StartTime: 2, EndTime: 4})
	m.Add(Segment{EventType: vad.ShortTimeout, StartTime: 4, EndTime: 6})

	nearest, ok := m.FindNearestShortPause(6.5, 10)
	if !ok || nearest != 6 {
		t.Fatalf("expected nearest 6, got %v ok=%v", nearest, ok)
	}

	_, ok = m.FindNearestShortPause(100, 1)
	if ok {
		t.Fatal("expected no match beyond max distance")
	}
}

func TestContextSegments(t *testing.T) {
	m := NewManager()
	m.Add(Segment{StartTime: 0, EndTime: 1})
	m.Add(Segment{StartTime: 5, EndTime: 6})
	before, after := m.ContextSegments(3, 2.5)
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("expected 1 before and 1 after, got %d/%d", len(before), len(after))
	}
}
