package mode

// Mode is the retrieval strategy a query descriptor resolves to.
type Mode string

// Search mode constants.
const (
	// Hybrid blends a lexical term with a vector clause.
	Hybrid  Mode = "hybrid"
	Vector  Mode = "vector"
	Lexical Mode = "lexical"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Vector || m == Lexical
}
