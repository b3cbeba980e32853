package audio

import "testing" // plain testing package, matching the teacher's test style

func TestBufferReadExactOverlap(t *testing.T) {
	b := NewBuffer(16000, 300)
	samples := make([]int16, 1600) // 100ms @ 16kHz
	for i := range samples {
		samples[i] = int16(i)
	}
	b.Write(samples, 0.1, 1.0) // covers [0.9, 1.0]

	got, actualStart, actualEnd := b.Read(0.9, 1.0)
	if len(got) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(got))
	}
	if actualStart != 0.9 || actualEnd != 1.0 {
		t.Fatalf("expected range [0.9,1.0], got [%v,%v]", actualStart, actualEnd)
	}
}

func TestBufferReadPartialOverlap(t *testing.T) {
	b := NewBuffer(16000, 300)
	samples := make([]int16, 1600)
	b.Write(samples, 0.1, 1.0) // [0.9, 1.0]

	got, actualStart, actualEnd := b.Read(0.95, 2.0)
	if len(got) != 800 {
		t.Fatalf("expected ~800 samples (half frame), got %d", len(got))
	}
	if actualStart != 0.95 || actualEnd != 1.0 {
		t.Fatalf("expected range [0.95,1.0], got [%v,%v]", actualStart, actualEnd)
	}
}

func TestBufferReadEmptyRange(t *testing.T) {
	b := NewBuffer(16000, 300)
	got, start, end := b.Read(5.0, 6.0)
	if len(got) != 0 {
		t.Fatalf("expected empty read, got %d samples", len(got))
	}
	if start != 0 || end != 0 {
		t.Fatalf("expected (0,0) bounds, got (%v,%v)", start, end)
	}
}

func TestBufferReadLatest(t *testing.T) {
	b := NewBuffer(16000, 300)
	b.Write(make([]int16, 1600), 0.1, 1.0)
	b.Write(make([]int16, 1600), 0.1, 1.1)

	got, start, end := b.ReadLatest(0.2)
	if len(got) == 0 {
		t.Fatal("expected non-empty read")
	}
	if end != 1.1 {
		t.Fatalf("expected end 1.1, got %v", end)
	}
	_ = start
}

func TestInt16Float32RoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768}
	f := Int16ToFloat32(samples)
	back := Float32ToInt16(f)
	for i := range samples {
		diff := int(samples[i]) - int(back[i])
		if diff < -1 || diff > 1 {
			t.Fatalf("round-trip drift too large at %d: %d -> %d", i, samples[i], back[i])
		}
	}
}

func TestBufferEmptyInitially(t *testing.T) {
	b := NewBuffer(16000, 300)
	if !b.Empty() {
		t.Fatal("expected new buffer to be empty")
	}
	start, end := b.TimeRange()
	if start != 0 || end != 0 {
		t.Fatalf("expected zero time range, got (%v,%v)", start, end)
	}
}
