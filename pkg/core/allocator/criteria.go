package allocator

// Criterion influences which riders are suggested for a request
type Criterion interface {
	// Name returns a human-readable identifier for this criterion
	Name() string

	// Veto returns a non-empty reason when the candidate must not be suggested.
	// If ANY criterion vetoes, the candidate is excluded.
	Veto(state *RequestState, candidate *Candidate) string

	// Score rates the candidate between 0.0 and 1.0; it is multiplied by Weight.
	// Return 0 if this criterion does not affect ranking.
	Score(state *RequestState, candidate *Candidate) float64

	// Weight scales Score (typical range: 0.0 - 10.0)
	Weight() float64
}
