package agent

import (
	"fmt"
	"strings"

	"github.com/veloxpay/guestpay/api/schemas"
)

// NextGoal returns the goal that follows the given one in the fixed payment
// flow, or a pause signal when the flow deliberately hands control back to
// the user. The chain never branches: find the portal, fill the bill lookup,
// pick the payment method, enter bank details, then stop for manual review.
func NextGoal(current schemas.Goal) (schemas.Goal, *PauseSignal, error) {
	switch current.Type {
	case schemas.GoalFindGuestPayURL:
		return schemas.Goal{Type: schemas.GoalFillBillInfo, Context: current.Context}, nil, nil
	case schemas.GoalFillBillInfo:
		return schemas.Goal{Type: schemas.GoalSelectPaymentMethod, Context: current.Context}, nil, nil
	case schemas.GoalSelectPaymentMethod:
		if current.Context.BankAccountNumber == "" || current.Context.BankRoutingNumber == "" {
			return schemas.Goal{}, nil, fmt.Errorf("missing payment method: bank account and routing numbers are required to continue past method selection")
		}
		return schemas.Goal{Type: schemas.GoalFillBankAccount, Context: current.Context}, nil, nil
	case schemas.GoalFillBankAccount:
		return schemas.Goal{}, &PauseSignal{
			Success: true,
			Reason:  "bank details entered; review the form and submit the payment manually",
		}, nil
	case schemas.GoalMakePayment:
		return schemas.Goal{}, &PauseSignal{
			Success: true,
			Reason:  "payment step reached; manual confirmation required",
		}, nil
	default:
		return schemas.Goal{}, nil, fmt.Errorf("unknown goal type: %q", current.Type)
	}
}

// DetectBillForm reports whether the page already shows a guest bill lookup
// form: at least one visible account-like input and one ZIP/postal-like
// input. Landing directly on such a page makes the URL-finding goal moot.
// Routing-number fields mention "account" too ("routing and account number")
// and must not count as the billing account input.
func DetectBillForm(snap schemas.PageSnapshot) bool {
	var hasAccount, hasZip bool
	for _, in := range snap.Inputs {
		blob := strings.ToLower(in.Name + " " + in.ID + " " + in.Placeholder + " " + in.Label)
		if strings.Contains(blob, "account") && !strings.Contains(blob, "routing") {
			hasAccount = true
		}
		if strings.Contains(blob, "zip") || strings.Contains(blob, "postal") {
			hasZip = true
		}
	}
	return hasAccount && hasZip
}

// -- Deterministic goal handlers --

// formField is one entry in a handler's fixed fill order.
type formField struct {
	key    string
	target string
	value  string
	redact bool
}

// nextUnsettled returns the first field that has neither been filled nor
// already failed. A field that fails is skipped on later iterations so one
// stubborn input does not stall the rest of the form.
func nextUnsettled(state *FormState, fields []formField) (formField, bool) {
	for _, f := range fields {
		if !state.Settled(f.key) {
			return f, true
		}
	}
	return formField{}, false
}

// fillOutcome turns the next pending field into a type action, or concludes
// the goal when every field has been attempted.
func fillOutcome(in DecisionInput, fields []formField, partialReason string) (Outcome, error) {
	f, ok := nextUnsettled(in.State, fields)
	if !ok {
		if in.State.AnyFailed() {
			return Outcome{
				Decision: schemas.AgentDecision{
					Observation: "Some form fields could not be filled.",
					Reasoning:   "Remaining fields need manual attention; stopping automated entry.",
				},
				Pause: &PauseSignal{Success: false, Reason: partialReason},
			}, nil
		}
		return Outcome{
			Decision: schemas.AgentDecision{
				Observation:  "All required fields are filled.",
				Reasoning:    "Form entry for this step is complete.",
				GoalAchieved: true,
				Confidence:   1.0,
			},
		}, nil
	}

	shown := f.value
	if f.redact {
		shown = MaskSensitive(f.value)
	}
	return Outcome{
		Decision: schemas.AgentDecision{
			Observation: fmt.Sprintf("The %s field has not been filled yet.", f.target),
			Reasoning:   fmt.Sprintf("Filling %s with %s.", f.target, shown),
			Action: schemas.AgentAction{
				Type:   schemas.ActionTypeText,
				Target: f.target,
				Value:  f.value,
			},
			Confidence: 1.0,
		},
		ProgressKey: f.key,
		RedactValue: f.redact,
	}, nil
}

// decideFillBillInfo fills the guest lookup form: account number first, then
// ZIP code. Account numbers are normalized to digits since portals reject
// the dashed formats printed on paper bills.
func decideFillBillInfo(in DecisionInput) (Outcome, error) {
	fields := []formField{
		{key: FieldAccountNumber, target: "Account Number", value: sanitizeNumeric(in.Goal.Context.AccountNumber)},
		{key: FieldZipCode, target: "ZIP Code", value: in.Goal.Context.ZipCode},
	}
	return fillOutcome(in, fields, "bill lookup form partially filled; complete the remaining fields manually")
}

// methodSubmitLabels are tried in order against the visible buttons when
// advancing past payment method selection.
var methodSubmitLabels = []string{"Continue", "Next", "Proceed", "Submit", "Confirm"}

// decideSelectPaymentMethod picks the bank account payment option and then
// advances with whatever submit-style button the page offers.
func decideSelectPaymentMethod(in DecisionInput) (Outcome, error) {
	if !in.State.Settled(StepBankOption) {
		return Outcome{
			Decision: schemas.AgentDecision{
				Observation: "Payment method has not been selected.",
				Reasoning:   "Selecting the bank account payment option.",
				Action: schemas.AgentAction{
					Type:   schemas.ActionClick,
					Target: "Bank Account",
				},
				Confidence: 1.0,
			},
			ProgressKey: StepBankOption,
		}, nil
	}

	if !in.State.Settled(StepMethodSubmit) {
		target := methodSubmitLabels[0]
		for _, label := range methodSubmitLabels {
			if snapshotHasButton(in.Snapshot, label) {
				target = label
				break
			}
		}
		return Outcome{
			Decision: schemas.AgentDecision{
				Observation: "Bank account option selected; a confirmation control is expected.",
				Reasoning:   fmt.Sprintf("Clicking %q to advance past method selection.", target),
				Action: schemas.AgentAction{
					Type:   schemas.ActionClick,
					Target: target,
				},
				Confidence: 0.9,
			},
			ProgressKey: StepMethodSubmit,
		}, nil
	}

	if in.State.AnyFailed() {
		return Outcome{
			Decision: schemas.AgentDecision{
				Observation: "Payment method selection did not complete.",
				Reasoning:   "The option or its confirmation could not be clicked; manual attention needed.",
			},
			Pause: &PauseSignal{Success: false, Reason: "payment method selection incomplete; choose the bank account option manually"},
		}, nil
	}
	return Outcome{
		Decision: schemas.AgentDecision{
			Observation:  "Bank account method selected and confirmed.",
			Reasoning:    "Payment method step is complete.",
			GoalAchieved: true,
			Confidence:   1.0,
		},
	}, nil
}

// decideFillBankAccount enters routing number then account number. Values
// are redacted everywhere they are echoed back.
func decideFillBankAccount(in DecisionInput) (Outcome, error) {
	fields := []formField{
		{key: FieldBankRouting, target: "Routing Number", value: sanitizeNumeric(in.Goal.Context.BankRoutingNumber), redact: true},
		{key: FieldBankAccount, target: "Bank Account Number", value: sanitizeNumeric(in.Goal.Context.BankAccountNumber), redact: true},
	}
	return fillOutcome(in, fields, "bank details partially entered; complete the remaining fields manually")
}

// decideMakePayment never submits anything. Moving money is the user's call.
func decideMakePayment(in DecisionInput) (Outcome, error) {
	return Outcome{
		Decision: schemas.AgentDecision{
			Observation: "The payment form is ready for final review.",
			Reasoning:   "Payment submission is always left to the user.",
		},
		Pause: &PauseSignal{Success: true, Reason: "payment ready for review; submit manually to complete"},
	}, nil
}

func snapshotHasButton(snap schemas.PageSnapshot, label string) bool {
	want := strings.ToLower(label)
	for _, b := range snap.Buttons {
		if strings.Contains(strings.ToLower(b.Text), want) {
			return true
		}
	}
	return false
}
