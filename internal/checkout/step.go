package checkout

import "fmt"

// Step is a wizard position. Steps only move forward through Advance
// (or Finalize, for the last one) and backward through Back.
type Step int

const (
	StepCart Step = iota
	StepAddress
	StepShippingChoice
	StepPayment
	StepSummary
	StepConfirmation
)

var stepNames = [...]string{
	StepCart:           "cart",
	StepAddress:        "address",
	StepShippingChoice: "shipping_choice",
	StepPayment:        "payment",
	StepSummary:        "summary",
	StepConfirmation:   "confirmation",
}

func (s Step) String() string {
	if s < StepCart || s > StepConfirmation {
		return fmt.Sprintf("step(%d)", int(s))
	}
	return stepNames[s]
}

// Next returns the following step. Confirmation is its own successor.
func (s Step) Next() Step {
	if s >= StepConfirmation {
		return StepConfirmation
	}
	return s + 1
}

// Prev returns the preceding step. Cart is its own predecessor.
func (s Step) Prev() Step {
	if s <= StepCart {
		return StepCart
	}
	return s - 1
}

// MarshalText renders the step name.
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a step name.
func (s *Step) UnmarshalText(b []byte) error {
	for i, name := range stepNames {
		if name == string(b) {
			*s = Step(i)
			return nil
		}
	}
	return fmt.Errorf("unknown checkout step %q", b)
}
