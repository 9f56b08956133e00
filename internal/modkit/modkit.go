package modkit

// Module is the common surface for service modules that expose ports
// keep this tiny so modules stay decoupled
type Module interface {
	// Ports returns a module specific port set for cross wiring
	Ports() any

	// Name returns the module name
	Name() string
}
