package blob

import (
	memorystore "gridcore/internal/infra/blob/memory"
)

// NewMemory returns an in-memory archive Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
