package ports

// RandomSource supplies the uniform draws used for traffic assignment.
// Implementations must be safe for concurrent use.
type RandomSource interface {
	Float64() float64
}
