// Package subscription maintains the per-symbol subscriber sets and the
// global active-symbol set.
//
// Invariant: a symbol is a member of the active-symbol set if and only if at
// least one connection subscribes to it in some tier. Every mutation here
// re-establishes that invariant before returning.
package subscription
