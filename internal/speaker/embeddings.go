// Package speaker implements the per-meeting speaker identity engine:
// embedding aggregation, adaptive-threshold matching, and the MRU speaker
// cache described in SPEC_FULL.md §4.4.
package speaker

import "math"

// Embedding is one stored voiceprint sample for a speaker.
type Embedding struct {
	Duration float64
	Vector   []float32
}

// Embeddings aggregates the voiceprint samples collected for one speaker
// id, tracking a centroid and an adaptive match threshold.
type Embeddings struct {
	ID                   int
	MaxEmbeddings        int
	BaseThreshold        float64
	vectors              []Embedding
	centroid             []float32
	meanPairwiseDistance float64
	adaptiveThreshold    float64
	recentDistances      []float64 // ring, capacity 10
}

const recentDistancesCapacity = 10

// NewEmbeddings creates a speaker's embedding aggregate, seeded with the
// base adaptive threshold.
func NewEmbeddings(id int, maxEmbeddings int, baseThreshold float64) *Embeddings {
	return &Embeddings{
		ID:                id,
		MaxEmbeddings:     maxEmbeddings,
		BaseThreshold:     baseThreshold,
		adaptiveThreshold: baseThreshold,
	}
}

// AddEmbedding inserts duration/vector into the speaker's sample set,
// replacing the most outlying existing sample if the set is already at
// capacity and the new sample is closer to the group on average.
func (e *Embeddings) AddEmbedding(duration float64, vector []float32) {
	if len(e.vectors) < e.MaxEmbeddings {
		e.vectors = append(e.vectors, Embedding{Duration: duration, Vector: vector})
		e.updateAverageEmbedding()
		return
	}

	distances := make([]float64, len(e.vectors))
	var sum float64
	maxIdx := 0
	for i, existing := range e.vectors {
		d := CosineDistance(vector, existing.Vector)
		distances[i] = d
		sum += d
		if d > distances[maxIdx] {
			maxIdx = i
		}
	}
	avgDistance := sum / float64(len(distances))

	if avgDistance < e.meanPairwiseDistance {
		e.vectors[maxIdx] = Embedding{Duration: duration, Vector: vector}
		e.updateAverageEmbedding()
	}
}

func (e *Embeddings) updateAverageEmbedding() {
	if len(e.vectors) == 0 {
		return
	}
	dim := len(e.vectors[0].Vector)
	centroid := make([]float32, dim)
	for _, v := range e.vectors {
		for i, x := range v.Vector {
			centroid[i] += x
		}
	}
	for i := range centroid {
		centroid[i] /= float32(len(e.vectors))
	}
	e.centroid = centroid

	if len(e.vectors) == 1 {
		e.meanPairwiseDistance = 0
		return
	}

	var sum float64
	count := 0
	for i := 0; i < len(e.vectors); i++ {
		for j := i + 1; j < len(e.vectors); j++ {
			sum += CosineDistance(e.vectors[i].Vector, e.vectors[j].Vector)
			count++
		}
	}
	e.meanPairwiseDistance = sum / float64(count)
}

// Centroid returns the speaker's mean embedding, or nil if no samples are
// stored yet.
func (e *Embeddings) Centroid() []float32 {
	return e.centroid
}

// AdaptiveThreshold reports the speaker's current adaptive match threshold.
func (e *Embeddings) AdaptiveThreshold() float64 {
	return e.adaptiveThreshold
}

// MeanPairwiseDistance reports the mean cosine distance between stored
// samples.
func (e *Embeddings) MeanPairwiseDistance() float64 {
	return e.meanPairwiseDistance
}

// Vectors returns the stored embedding samples.
func (e *Embeddings) Vectors() []Embedding {
	return e.vectors
}

// IsSameSpeaker decides whether vector belongs to this speaker, per
// SPEC_FULL.md §4.4. When the match holds and allowUpdate is set, the
// sample is folded into the speaker's aggregate and the adaptive threshold
// is updated (clamped per the REDESIGN FLAG in SPEC_FULL.md §9).
func (e *Embeddings) IsSameSpeaker(vector []float32, duration float64, allowUpdate bool) (bool, float64) {
	if e.centroid == nil || duration < 0.1 {
		return false, 0
	}

	distance := CosineDistance(e.centroid, vector)

	durationFactor := 1.0
	if duration < 3.0 {
		durationFactor = 1 + math.Min(0.25, (3.0-duration)/3.0*0.25)
	}
	thresholdEff := e.adaptiveThreshold * durationFactor

	avgHistorical := thresholdEff
	stdHistorical := thresholdEff * 0.1
	if len(e.recentDistances) > 0 {
		avgHistorical = mean(e.recentDistances)
	}
	if len(e.recentDistances) > 1 {
		stdHistorical = stddev(e.recentDistances, avgHistorical)
	}

	isSame := distance < thresholdEff || distance < avgHistorical+stdHistorical

	if isSame && allowUpdate {
		e.AddEmbedding(duration, vector)
		e.pushRecentDistance(distance)
		updated := e.adaptiveThreshold*0.9 + distance*0.1
		e.adaptiveThreshold = clamp(updated, 0.5*e.BaseThreshold, 2*e.BaseThreshold)
	}

	return isSame, distance
}

func (e *Embeddings) pushRecentDistance(d float64) {
	e.recentDistances = append(e.recentDistances, d)
	if len(e.recentDistances) > recentDistancesCapacity {
		e.recentDistances = e.recentDistances[len(e.recentDistances)-recentDistancesCapacity:]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// CosineDistance computes 1 - cosine_similarity(a, b). Mismatched or empty
// vectors are treated as maximally distant (2.0).
func CosineDistance(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 2.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
