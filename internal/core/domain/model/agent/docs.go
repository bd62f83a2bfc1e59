// Package agent provides the Agent aggregate root for the dispatch core.
//
// An agent is the delivery-side party: it announces presence, reports
// position samples, covers a set of service-area zones, and works on at most
// one order at a time. The aggregate enforces the single-active-order
// invariant and keeps the acceptance-rate ranking input that dispatch uses
// to order candidates.
package agent
