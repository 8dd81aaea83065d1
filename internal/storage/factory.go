package storage

import "fmt"

// Backend names accepted by the factory.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// ValidateBackend rejects unknown backend names early, before any
// connection attempt.
func ValidateBackend(name string) error {
	switch name {
	case BackendMemory, BackendPostgres:
		return nil
	default:
		return fmt.Errorf("unsupported storage backend: %s", name)
	}
}
