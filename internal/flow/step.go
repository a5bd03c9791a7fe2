package flow

import (
	"fmt"

	"veriflow/internal/identity"
)

// Step identifies one stage of the verification workflow.
type Step string

const (
	StepIntro            Step = "intro"
	StepLocaleSelect     Step = "locale-select"
	StepIdentityLogin    Step = "identity-login"
	StepMethodSelect     Step = "method-select"
	StepDocumentCapture  Step = "document-capture"
	StepBiometricCapture Step = "biometric-capture"
	StepUpload           Step = "upload"
	StepReview           Step = "review"
	StepComplete         Step = "complete"
	StepFeedback         Step = "feedback"
)

// Steps lists every step in workflow order.
func Steps() []Step {
	return []Step{
		StepIntro,
		StepLocaleSelect,
		StepIdentityLogin,
		StepMethodSelect,
		StepDocumentCapture,
		StepBiometricCapture,
		StepUpload,
		StepReview,
		StepComplete,
		StepFeedback,
	}
}

// definition carries per-step metadata: the precondition the accumulated
// record must satisfy before the step may activate, and whether the screen
// wake lock is held while the step is active.
type definition struct {
	precondition  func(identity.Record) error
	wantsWakeLock bool
}

var definitions = map[Step]definition{
	StepIntro:        {},
	StepLocaleSelect: {},
	StepIdentityLogin: {
		precondition: requireField("locale", func(r identity.Record) bool { return r.Locale != nil }),
	},
	StepMethodSelect: {
		precondition: requireField("phone", func(r identity.Record) bool { return r.Phone != nil }),
	},
	StepDocumentCapture: {
		precondition:  requireField("method", func(r identity.Record) bool { return r.Method != nil }),
		wantsWakeLock: true,
	},
	StepBiometricCapture: {
		precondition:  requireField("document refs", func(r identity.Record) bool { return len(r.DocumentRefs) > 0 }),
		wantsWakeLock: true,
	},
	StepUpload: {
		precondition:  requireField("face ref", func(r identity.Record) bool { return r.FaceRef != nil }),
		wantsWakeLock: true,
	},
	StepReview: {
		precondition: requireField("face verification", func(r identity.Record) bool {
			return r.FaceVerified != nil && *r.FaceVerified
		}),
	},
	StepComplete: {},
	StepFeedback: {},
}

// transitions is the closed successor table. Every reachable history is a
// path through this table starting at StepIntro.
var transitions = map[Step][]Step{
	StepIntro:            {StepLocaleSelect},
	StepLocaleSelect:     {StepIdentityLogin},
	StepIdentityLogin:    {StepMethodSelect},
	StepMethodSelect:     {StepDocumentCapture},
	StepDocumentCapture:  {StepBiometricCapture},
	StepBiometricCapture: {StepUpload},
	StepUpload:           {StepReview},
	StepReview:           {StepComplete},
	StepComplete:         {StepFeedback},
	StepFeedback:         {},
}

func init() {
	if err := validateTables(); err != nil {
		panic(err)
	}
}

// validateTables cross-checks the step tables at startup so a malformed
// entry fails loudly instead of surfacing as a runtime dead end.
func validateTables() error {
	for _, step := range Steps() {
		if _, ok := definitions[step]; !ok {
			return fmt.Errorf("step %s has no definition", step)
		}
		if _, ok := transitions[step]; !ok {
			return fmt.Errorf("step %s has no transition entry", step)
		}
	}
	for step, successors := range transitions {
		if _, ok := definitions[step]; !ok {
			return fmt.Errorf("transition source %s is not a defined step", step)
		}
		for _, next := range successors {
			if _, ok := definitions[next]; !ok {
				return fmt.Errorf("transition %s -> %s targets undefined step", step, next)
			}
		}
	}
	return nil
}

// Known reports whether the identifier names a defined step.
func Known(step Step) bool {
	_, ok := definitions[step]
	return ok
}

// WantsWakeLock reports whether the step holds the screen wake lock.
func WantsWakeLock(step Step) bool {
	return definitions[step].wantsWakeLock
}

// Successors returns the legal next steps.
func Successors(step Step) []Step {
	return append([]Step(nil), transitions[step]...)
}

// CheckPrecondition verifies the record satisfies the step's entry predicate.
func CheckPrecondition(step Step, record identity.Record) error {
	def, ok := definitions[step]
	if !ok {
		return fmt.Errorf("unknown step %s", step)
	}
	if def.precondition == nil {
		return nil
	}
	return def.precondition(record)
}

func requireField(name string, present func(identity.Record) bool) func(identity.Record) error {
	return func(r identity.Record) error {
		if present(r) {
			return nil
		}
		return fmt.Errorf("missing %s", name)
	}
}
