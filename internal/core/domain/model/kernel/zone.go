package kernel

import (
	"strings"

	"dispatch/internal/pkg/errs"
)

// ErrZoneIsRequired is returned when a zone name is empty or blank.
var ErrZoneIsRequired = errs.NewValueIsRequiredError("zone")

// Zone is a named service-area zone. Agents declare the set of zones they
// serve; an order belongs to exactly one zone derived from its shipping
// address by the intake collaborator. Zone names are case-insensitive.
type Zone struct {
	name string
}

// NewZone creates a Zone from a non-blank name. The name is trimmed and
// lowercased so that comparisons are case-insensitive.
func NewZone(name string) (Zone, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Zone{}, ErrZoneIsRequired
	}

	return Zone{name: name}, nil
}

// Validate checks that the zone carries a name.
func (z Zone) Validate() error {
	if z.name == "" {
		return ErrZoneIsRequired
	}
	return nil
}

// Name returns the normalized zone name.
func (z Zone) Name() string {
	return z.name
}

// String implements fmt.Stringer.
func (z Zone) String() string {
	return z.name
}

// IsEqual reports whether two zones name the same service area.
func (z Zone) IsEqual(other Zone) bool {
	return z.name == other.name
}
