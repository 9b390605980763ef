// Package events defines the typed recognition event contract.
//
// Event kinds use the identity.* namespace:
//
//   - IdentityRecognized (identity.recognized): a known identity confirmed
//     after the appearance debounce threshold.
//   - IdentityUnknown (identity.unknown): an unmatched detection confirmed
//     after the appearance debounce threshold.
//   - IdentityDeparted (identity.departed): a confirmed identity has been
//     absent for the departure debounce threshold.
//   - NoIdentitiesPresent (identity.none_present): the scene transitioned
//     to empty; edge-triggered, never repeated per empty frame.
//
// Semantics used across the package:
//
//   - Sequence: position in the global event order, stamped by the tracker.
//   - Confirmed: survived debouncing; only confirmed identities produce
//     departure events.
package events
