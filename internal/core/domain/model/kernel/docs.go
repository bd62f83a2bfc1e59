// Package kernel provides core domain primitives shared across the dispatch
// domain model.
//
// The package includes:
//   - UUID: a value object for unique identifiers with validation and comparison
//   - GeoPoint: a validated geographic coordinate pair (latitude/longitude)
//   - Zone: a named service-area zone used to match agents to orders
//
// These primitives enforce domain invariants at construction time, are
// immutable, and are safe for concurrent use. Domain objects built on them
// can rely on their validity without re-checking.
package kernel
