package result

// Hit is a single ranked search hit.
// Distance is nil when the query carried no vector clause
// or the stored document has no vector to measure against.
type Hit struct {
	ID       string
	Distance *float64
	Score    float64
	Payload  map[string]string
}

// Similarity converts the vector distance into a similarity (1 - distance).
// Returns false when the hit has no distance.
func (h Hit) Similarity() (float64, bool) {
	if h.Distance == nil {
		return 0, false
	}
	return 1 - *h.Distance, true
}

// Field returns a payload field, or "" if absent.
func (h Hit) Field(name string) string {
	if h.Payload == nil {
		return ""
	}
	return h.Payload[name]
}
