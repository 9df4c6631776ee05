package schemas

// -- Goal Schemas --

// GoalType identifies one of the discrete stages of the guest payment flow.
type GoalType string

const (
	GoalFindGuestPayURL     GoalType = "find_guest_pay_url"
	GoalFillBillInfo        GoalType = "fill_bill_info"
	GoalSelectPaymentMethod GoalType = "select_payment_method"
	GoalFillBankAccount     GoalType = "fill_bank_account"
	GoalMakePayment         GoalType = "make_payment"
)

// Valid reports whether t is one of the known goal types.
func (t GoalType) Valid() bool {
	switch t {
	case GoalFindGuestPayURL, GoalFillBillInfo, GoalSelectPaymentMethod,
		GoalFillBankAccount, GoalMakePayment:
		return true
	}
	return false
}

// GoalContext carries the user-supplied data a goal may need to complete.
// All fields are optional; each goal handler reads only the fields it uses.
type GoalContext struct {
	Provider          string `json:"provider,omitempty"`
	AccountNumber     string `json:"account_number,omitempty"`
	ZipCode           string `json:"zip_code,omitempty"`
	BillAmount        string `json:"bill_amount,omitempty"`
	DueDate           string `json:"due_date,omitempty"`
	BillAddress       string `json:"bill_address,omitempty"`
	BankAccountNumber string `json:"bank_account_number,omitempty"`
	BankRoutingNumber string `json:"bank_routing_number,omitempty"`
}

// Goal is a single objective handed to the agent: what stage to complete
// and the data available to complete it with.
type Goal struct {
	Type    GoalType    `json:"type"`
	Context GoalContext `json:"context"`
}
