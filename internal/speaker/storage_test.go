package speaker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestStorageSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speakers.json")

	s, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	rec := Record{
		Embeddings:        []EmbeddingRecord{{Duration: 3.2, Embedding: []float32{0.1, 0.2, 0.3}}},
		AverageEmbedding:  []float32{0.1, 0.2, 0.3},
		AverageDistance:   0.0,
		AdaptiveThreshold: 0.25,
	}
	if err := s.AddOrUpdateSpeaker("1", rec); err != nil {
		t.Fatalf("AddOrUpdateSpeaker: %v", err)
	}

	s2, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reload NewStorage: %v", err)
	}
	got, ok := s2.GetSpeaker("1")
	if !ok {
		t.Fatal("expected speaker 1 to round-trip")
	}
	if len(got.Embeddings) != 1 || got.Embeddings[0].Duration != 3.2 {
		t.Fatalf("unexpected round-tripped record: %+v", got)
	}
}

func TestStoragePreservesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "speakers.json")

	raw := `{"1": {"embeddings": [], "average_embedding": [], "average_distance": 0, "adaptive_threshold": 0.25, "future_field": {"nested": true}}}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	rec, ok := s.GetSpeaker("1")
	if !ok {
		t.Fatal("expected speaker 1 to load")
	}
	if _, ok := rec.Extra["future_field"]; !ok {
		t.Fatalf("expected future_field to be preserved, got extra=%v", rec.Extra)
	}

	// Modify and re-save; unknown field must survive.
	rec.AdaptiveThreshold = 0.3
	if err := s.AddOrUpdateSpeaker("1", rec); err != nil {
		t.Fatalf("AddOrUpdateSpeaker: %v", err)
	}

	s2, err := NewStorage(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rec2, _ := s2.GetSpeaker("1")
	var future map[string]bool
	if err := json.Unmarshal(rec2.Extra["future_field"], &future); err != nil {
		t.Fatalf("future_field not round-tripped as JSON: %v", err)
	}
	if !future["nested"] {
		t.Fatalf("expected nested:true to survive, got %v", future)
	}
}
