package domain

// IDGenerator produces string identifiers unique within the process
// lifetime. No inputs, no failure modes.
type IDGenerator interface {
	NewID() string
}
