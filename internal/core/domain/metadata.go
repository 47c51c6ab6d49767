package domain

import "github.com/google/uuid"

// Metadata carries the type-specific payload of a transaction as a tagged
// union: exactly the member matching the transaction type is set. Linking
// fields (RefundFor, LinkedReference) tie fee and refund entries back to
// the movement they belong to.
type Metadata struct {
	Airtime     *AirtimeDetails     `json:"airtime,omitempty"`
	Data        *DataDetails        `json:"data,omitempty"`
	Electricity *ElectricityDetails `json:"electricity,omitempty"`
	CableTV     *CableTVDetails     `json:"cable_tv,omitempty"`
	Education   *EducationDetails   `json:"education,omitempty"`
	Transfer    *TransferDetails    `json:"transfer,omitempty"`
	Withdrawal  *WithdrawalDetails  `json:"withdrawal,omitempty"`

	// RefundFor holds the reference of the failed transaction this entry
	// reverses. Set only on refund entries.
	RefundFor string `json:"refund_for,omitempty"`

	// LinkedReference groups the rows of a multi-row movement
	// (transfer gross / fee / recipient credit).
	LinkedReference string `json:"linked_reference,omitempty"`
}

// AirtimeDetails covers airtime_recharge, airtime_swap and recharge_pin.
type AirtimeDetails struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phone_number"`
}

// DataDetails covers data_recharge and sme_data.
type DataDetails struct {
	Network     string `json:"network"`
	PhoneNumber string `json:"phone_number"`
	PlanID      string `json:"plan_id"`
	PlanName    string `json:"plan_name,omitempty"`
}

// ElectricityDetails covers electricity bill payments.
type ElectricityDetails struct {
	Disco       string `json:"disco"`
	MeterNumber string `json:"meter_number"`
	MeterType   string `json:"meter_type"` // prepaid or postpaid
	Token       string `json:"token,omitempty"`
}

// CableTVDetails covers cable_tv subscriptions.
type CableTVDetails struct {
	Provider        string `json:"provider"`
	SmartcardNumber string `json:"smartcard_number"`
	Package         string `json:"package"`
}

// EducationDetails covers education_pin and rrr_payment.
type EducationDetails struct {
	ExamBoard string   `json:"exam_board"`
	Quantity  int      `json:"quantity"`
	Pins      []string `json:"pins,omitempty"`
}

// TransferDetails covers wallet_transfer entries on both sides.
type TransferDetails struct {
	SenderUserID    uuid.UUID `json:"sender_user_id"`
	RecipientUserID uuid.UUID `json:"recipient_user_id"`
}

// WithdrawalDetails covers bank withdrawals.
type WithdrawalDetails struct {
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name,omitempty"`
}
