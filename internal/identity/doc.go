// Package identity accumulates the partial identity record built up across
// verification steps.
//
// The Accumulator owns the only mutable copy of the record. Steps contribute
// field-wise partial updates through Merge; readers get immutable snapshots.
// Each field is owned by exactly one step (see FieldOwners), so merges from
// different steps touch disjoint field sets and a field, once set, is only
// rewritten by the step that owns it.
package identity
