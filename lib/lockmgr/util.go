package lockmgr

import (
	"github.com/google/uuid"
)

// NewOwnerID creates a new unique owner ID.
// Every independent task that takes locks should use its own owner ID.
func NewOwnerID() string {
	return uuid.NewString()
}
