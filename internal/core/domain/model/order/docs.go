// Package order provides the Order aggregate root and its lifecycle state
// machine for the dispatch core.
//
// The package includes:
//   - Order: the aggregate root managing identity, assignment, and lifecycle
//   - Status: a closed state machine with an explicit transition table
//   - PaymentStatus: a side channel independent of the lifecycle
//
// Key business rules:
//   - At most one agent is assigned to an order at any instant
//   - Status changes traverse only declared state machine edges; anything
//     else is rejected and leaves the order unchanged
//   - Delivered and Cancelled are terminal; NoAgentAvailable is recoverable
//     through a customer-triggered retry
//   - Customers may cancel only before pickup
//
// The package follows Domain-Driven Design principles, providing rich domain
// behavior, encapsulation, and validation to ensure business rules are enforced.
package order
