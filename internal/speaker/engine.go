package speaker

import (
	"fmt"
	"log"
	"math"
	"sync"
)

// Embedder is the black-box voiceprint model: given int16 PCM audio at
// sampleRate, it returns a fixed-dimension embedding vector. Returns
// (nil, nil) for audio too short to embed meaningfully.
type Embedder interface {
	Embed(samples []int16, sampleRate int) ([]float32, error)
}

const recentIDsCapacity = 5

// Config holds the tunables for the speaker identity engine.
type Config struct {
	BaseThreshold    float64
	MaxEmbeddings    int
	MinChunkDuration float64
	MaxChunkDuration float64
	DataDir          string
}

// Engine is the per-meeting speaker identity registry described in
// SPEC_FULL.md §4.4.
type Engine struct {
	mu       sync.Mutex
	embedder Embedder
	cfg      Config

	speakers      map[int]*Embeddings
	lastSpeakerID int
	recentIDs     []int

	currentMeetingID int64
	storage          *Storage
}

// NewEngine creates a speaker identity engine. No meeting is bound until
// SwitchMeeting is called.
func NewEngine(embedder Embedder, cfg Config) *Engine {
	return &Engine{
		embedder: embedder,
		cfg:      cfg,
		speakers: make(map[int]*Embeddings),
	}
}

// SwitchMeeting clears the in-memory registry and binds storage to the new
// meeting id, loading any previously persisted speakers.
func (e *Engine) SwitchMeeting(meetingID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.speakers = make(map[int]*Embeddings)
	e.lastSpeakerID = 0
	e.recentIDs = nil
	e.currentMeetingID = meetingID

	path := fmt.Sprintf("%s/speakers.%d.json", e.cfg.DataDir, meetingID)
	storage, err := NewStorage(path)
	if err != nil {
		return fmt.Errorf("switch meeting %d: %w", meetingID, err)
	}
	e.storage = storage

	for idStr, rec := range storage.GetAllSpeakers() {
		id, err := parseSpeakerID(idStr)
		if err != nil {
			continue
		}
		emb := NewEmbeddings(id, e.cfg.MaxEmbeddings, e.cfg.BaseThreshold)
		for _, sample := range rec.Embeddings {
			emb.AddEmbedding(sample.Duration, sample.Embedding)
		}
		emb.adaptiveThreshold = rec.AdaptiveThreshold
		e.speakers[id] = emb
		if id > e.lastSpeakerID {
			e.lastSpeakerID = id
		}
	}
	return nil
}

func parseSpeakerID(s string) (int, error) {
	var id int
	_, err := fmt.Sscanf(s, "%d", &id)
	return id, err
}

// IdentifyFromBuffer runs the black-box embedder over samples and resolves
// a speaker id, per the algorithm in SPEC_FULL.md §4.4. Returns 0 for
// "unknown" per the original semantics.
func (e *Engine) IdentifyFromBuffer(samples []int16, sampleRate int, allowUpdate bool) (int, error) {
	totalDuration := float64(len(samples)) / float64(sampleRate)
	if totalDuration < 0.1 {
		return 0, nil
	}

	samples, totalDuration = e.capToMaxChunkDuration(samples, sampleRate, totalDuration)

	vector, err := e.embedder.Embed(samples, sampleRate)
	if err != nil {
		return 0, fmt.Errorf("embed audio: %w", err)
	}
	if vector == nil {
		return 0, nil
	}

	if totalDuration < e.cfg.MinChunkDuration {
		allowUpdate = false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.speakers) == 0 {
		if !allowUpdate {
			return 0, nil
		}
		return e.addNewSpeakerLocked(vector, totalDuration), nil
	}

	for _, id := range e.recentIDs {
		spk := e.speakers[id]
		same, _ := spk.IsSameSpeaker(vector, totalDuration, allowUpdate)
		if same {
			if allowUpdate {
				e.updateRecentLocked(id)
				e.persistLocked(id)
			}
			return id, nil
		}
	}

	if !allowUpdate {
		bestID := 0
		bestDistance := math.Inf(1)
		for _, id := range e.recentIDs {
			spk := e.speakers[id]
			if spk.Centroid() == nil {
				continue
			}
			d := CosineDistance(vector, spk.Centroid())
			if d < bestDistance {
				bestDistance = d
				bestID = id
			}
		}
		return bestID, nil
	}

	for id, spk := range e.speakers {
		same, _ := spk.IsSameSpeaker(vector, totalDuration, allowUpdate)
		if same {
			e.updateRecentLocked(id)
			e.persistLocked(id)
			return id, nil
		}
	}

	return e.addNewSpeakerLocked(vector, totalDuration), nil
}

func (e *Engine) addNewSpeakerLocked(vector []float32, duration float64) int {
	e.lastSpeakerID++
	id := e.lastSpeakerID
	spk := NewEmbeddings(id, e.cfg.MaxEmbeddings, e.cfg.BaseThreshold)
	spk.AddEmbedding(duration, vector)
	e.speakers[id] = spk
	e.persistLocked(id)
	e.updateRecentLocked(id)
	return id
}

func (e *Engine) updateRecentLocked(id int) {
	for i, existing := range e.recentIDs {
		if existing == id {
			e.recentIDs = append(e.recentIDs[:i], e.recentIDs[i+1:]...)
			break
		}
	}
	e.recentIDs = append([]int{id}, e.recentIDs...)
	if len(e.recentIDs) > recentIDsCapacity {
		e.recentIDs = e.recentIDs[:recentIDsCapacity]
	}
}

func (e *Engine) persistLocked(id int) {
	if e.storage == nil {
		return
	}
	spk := e.speakers[id]
	rec := toRecord(spk)
	if err := e.storage.AddOrUpdateSpeaker(fmt.Sprintf("%d", id), rec); err != nil {
		log.Printf("[ERROR] persist speaker %d: %v", id, err)
	}
}

func toRecord(spk *Embeddings) Record {
	embRecs := make([]EmbeddingRecord, len(spk.vectors))
	for i, v := range spk.vectors {
		embRecs[i] = EmbeddingRecord{Duration: v.Duration, Embedding: v.Vector}
	}
	return Record{
		Embeddings:        embRecs,
		AverageEmbedding:  spk.centroid,
		AverageDistance:   spk.meanPairwiseDistance,
		AdaptiveThreshold: spk.adaptiveThreshold,
	}
}

// SegmentDistance computes the cosine distance between two raw audio
// segments' embeddings. Empty or unembeddable segments are treated as
// infinitely distant.
func (e *Engine) SegmentDistance(a, b []int16, sampleRate int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return math.Inf(1)
	}
	a, _ = e.capToMaxChunkDuration(a, sampleRate, float64(len(a))/float64(sampleRate))
	b, _ = e.capToMaxChunkDuration(b, sampleRate, float64(len(b))/float64(sampleRate))

	ea, err := e.embedder.Embed(a, sampleRate)
	if err != nil || ea == nil {
		return math.Inf(1)
	}
	eb, err := e.embedder.Embed(b, sampleRate)
	if err != nil || eb == nil {
		return math.Inf(1)
	}
	return CosineDistance(ea, eb)
}

// capToMaxChunkDuration crops samples to at most cfg.MaxChunkDuration
// seconds, keeping the lead of the buffer, matching the original's
// Segment(0, min(total_duration, max_chunk_duration)) crop before
// embedding inference. A non-positive MaxChunkDuration means "no cap."
func (e *Engine) capToMaxChunkDuration(samples []int16, sampleRate int, duration float64) ([]int16, float64) {
	if e.cfg.MaxChunkDuration <= 0 || duration <= e.cfg.MaxChunkDuration {
		return samples, duration
	}
	maxSamples := int(e.cfg.MaxChunkDuration * float64(sampleRate))
	if maxSamples >= len(samples) {
		return samples, duration
	}
	return samples[:maxSamples], e.cfg.MaxChunkDuration
}

// GetSpeakerEmbedding returns the stored centroid for a speaker id, if any.
func (e *Engine) GetSpeakerEmbedding(id int) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	spk, ok := e.speakers[id]
	if !ok || spk.Centroid() == nil {
		return nil, false
	}
	return spk.Centroid(), true
}

// RegistrySize reports how many speakers are currently known, for tests.
func (e *Engine) RegistrySize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.speakers)
}
