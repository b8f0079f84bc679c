package observability

import "github.com/google/uuid"

// idFunc generates a new unique identifier. The default implementation
// prefixes a UUIDv4 so entries stay greppable in raw SQL output.
type idFunc func() string

// prefixedID returns an idFunc that prepends prefix to a UUIDv4.
func prefixedID(prefix string) idFunc {
	return func() string {
		return prefix + uuid.NewString()
	}
}
