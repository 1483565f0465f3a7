package testutil

// FixedPassIDGenerator returns the same compilation pass id every time.
//
// This keeps engine logs and explain output byte-identical across runs so
// they can be compared against golden files.
//
// Thread-safety: FixedPassIDGenerator is stateless and safe for concurrent use.
type FixedPassIDGenerator struct {
	id string
}

// NewFixedPassIDGenerator creates a fixed pass id generator.
//
// If id is empty, Generate() returns "test-pass-default".
func NewFixedPassIDGenerator(id string) *FixedPassIDGenerator {
	if id == "" {
		id = "test-pass-default"
	}
	return &FixedPassIDGenerator{id: id}
}

// Generate returns the fixed pass id.
//
// Implements engine.PassIDGenerator.
func (g *FixedPassIDGenerator) Generate() string {
	return g.id
}
