package transactions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/txsentinel/internal/idgen"
	"github.com/mbd888/txsentinel/internal/validation"
)

// Input is the wire shape of a submitted transaction.
type Input struct {
	SenderID              string           `json:"sender_id"`
	SenderName            string           `json:"sender_name"`
	SenderMobile          string           `json:"sender_mobile"`
	SenderCountry         string           `json:"sender_country"`
	BeneficiaryID         string           `json:"beneficiary_id"`
	BeneficiaryName       string           `json:"beneficiary_name"`
	BeneficiaryCountry    string           `json:"beneficiary_country"`
	MTN                   string           `json:"mtn"`
	Channel               string           `json:"channel"`
	Amount                *decimal.Decimal `json:"amount"`
	Currency              string           `json:"currency"`
	PaymentMethod         string           `json:"payment_method"`
	SendingCountry        string           `json:"sending_country"`
	PayoutCountry         string           `json:"payout_country"`
	SendingDate           string           `json:"sending_date"`
	ComplianceReleaseDate string           `json:"compliance_release_date"`
	// Status is honoured only for historical records; submissions for
	// prediction always start Pending.
	Status string `json:"status"`
}

// Build validates the input and returns a new transaction. A missing
// sending date defaults to now.
func (in *Input) Build(now time.Time) (*Transaction, error) {
	var sendingDate, releaseDate time.Time
	var sendingErr, releaseErr error
	if in.SendingDate != "" {
		sendingDate, sendingErr = ParseTime(in.SendingDate)
	} else {
		sendingDate = now.UTC()
	}
	if in.ComplianceReleaseDate != "" {
		releaseDate, releaseErr = ParseTime(in.ComplianceReleaseDate)
	}

	errs := validation.Validate(
		validation.Required("sender_id", in.SenderID),
		validation.ValidID("sender_id", in.SenderID),
		validation.ValidID("beneficiary_id", in.BeneficiaryID),
		validation.NonNegativeAmount("amount", in.Amount),
		validation.Check("sending_date", sendingErr),
		validation.Check("compliance_release_date", releaseErr),
		validation.MaxLength("sender_name", in.SenderName, validation.MaxStringLength),
		validation.MaxLength("beneficiary_name", in.BeneficiaryName, validation.MaxStringLength),
		validation.MaxLength("status", in.Status, 64),
	)
	if len(errs) > 0 {
		return nil, errs
	}

	clean := func(s string) string { return validation.SanitizeString(s, validation.MaxStringLength) }
	tx := &Transaction{
		ID:                 idgen.New(),
		SenderID:           in.SenderID,
		SenderName:         clean(in.SenderName),
		SenderMobile:       clean(in.SenderMobile),
		SenderCountry:      clean(in.SenderCountry),
		BeneficiaryID:      in.BeneficiaryID,
		BeneficiaryName:    clean(in.BeneficiaryName),
		BeneficiaryCountry: clean(in.BeneficiaryCountry),
		MTN:                clean(in.MTN),
		Channel:            clean(in.Channel),
		Amount:             *in.Amount,
		Currency:           clean(in.Currency),
		PaymentMethod:      clean(in.PaymentMethod),
		SendingCountry:     clean(in.SendingCountry),
		PayoutCountry:      clean(in.PayoutCountry),
		SendingDate:        sendingDate,
		Status:             StatusPending,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.ComplianceReleaseDate != "" {
		tx.ComplianceReleaseDate = &releaseDate
	}
	if in.Status != "" {
		tx.Status = Status(clean(in.Status))
	}
	return tx, nil
}
