package identity

import (
	"fmt"
	"sync"

	"dario.cat/mergo"
)

// Record is the cumulative partial identity data gathered across steps.
// Optional fields are pointers; nil means "not yet provided".
type Record struct {
	Phone        *string
	Region       *string
	Locale       *string
	Method       *string
	FaceVerified *bool
	DocumentRefs []string
	FaceRef      *string
}

// FieldOwners maps each record field to the workflow step allowed to set it.
// The step identifiers match the flow package's step ids. A test asserts no
// two steps claim the same field.
var FieldOwners = map[string]string{
	"Phone":        "identity-login",
	"Region":       "identity-login",
	"Locale":       "locale-select",
	"Method":       "method-select",
	"DocumentRefs": "document-capture",
	"FaceVerified": "biometric-capture",
	"FaceRef":      "biometric-capture",
}

// Accumulator holds the live record and serializes merges.
type Accumulator struct {
	mu     sync.Mutex
	record Record
}

// NewAccumulator returns an accumulator seeded with the given record.
func NewAccumulator(seed Record) *Accumulator {
	return &Accumulator{record: cloneRecord(seed)}
}

// Merge applies a field-wise union: non-nil fields of partial overwrite the
// live record, DocumentRefs append. Merging the same partial twice yields the
// same record as merging it once, aside from the append-only ref list. The
// returned error indicates an internal merge failure only, never a field
// conflict.
func (a *Accumulator) Merge(partial Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	incoming := cloneRecord(partial)
	if err := mergo.Merge(&a.record, incoming, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return fmt.Errorf("merge identity record: %w", err)
	}
	a.record.DocumentRefs = dedupe(a.record.DocumentRefs)
	return nil
}

// Snapshot returns an immutable deep copy of the live record. Callers must
// never mutate the accumulator through a snapshot; an abandoned step therefore
// cannot corrupt accumulated data.
func (a *Accumulator) Snapshot() Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneRecord(a.record)
}

func cloneRecord(r Record) Record {
	out := Record{
		Phone:        cloneString(r.Phone),
		Region:       cloneString(r.Region),
		Locale:       cloneString(r.Locale),
		Method:       cloneString(r.Method),
		FaceVerified: cloneBool(r.FaceVerified),
		FaceRef:      cloneString(r.FaceRef),
	}
	if len(r.DocumentRefs) > 0 {
		out.DocumentRefs = append([]string(nil), r.DocumentRefs...)
	}
	return out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func dedupe(refs []string) []string {
	if len(refs) < 2 {
		return refs
	}
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// StringPtr is a convenience constructor for optional string fields.
func StringPtr(v string) *string { return &v }

// BoolPtr is a convenience constructor for optional bool fields.
func BoolPtr(v bool) *bool { return &v }
