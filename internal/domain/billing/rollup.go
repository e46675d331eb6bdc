// Package billing derives the computed money fields of a clinic record from
// its raw prices and advances.
package billing

import (
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/pkg/money"
)

// Inputs are the user-entered amounts of a record.
type Inputs struct {
	VisitPrice      money.Amount `json:"visitPrice" bson:"visitPrice"`
	FramePrice      money.Amount `json:"framePrice" bson:"framePrice"`
	LensePrice      money.Amount `json:"lensePrice" bson:"lensePrice"`
	MedicinePrice   money.Amount `json:"medicinePrice" bson:"medicinePrice"`
	MedicineAdvance money.Amount `json:"medicineAdvance" bson:"medicineAdvance"`
	OpticalAdvance  money.Amount `json:"opticalAdvance" bson:"opticalAdvance"`
}

// Totals are derived from Inputs and are never edited directly.
type Totals struct {
	MedicineDue  money.Amount `json:"medicineDue" bson:"medicineDue"`
	TotalAmount  money.Amount `json:"totalAmount" bson:"totalAmount"`
	TotalAdvance money.Amount `json:"totalAdvance" bson:"totalAdvance"`
	TotalDue     money.Amount `json:"totalDue" bson:"totalDue"`
	OpticalPrice money.Amount `json:"opticalaPrice" bson:"opticalaPrice"`
}

// OpticalPrice is the combined price of frame and lenses.
func OpticalPrice(frame, lens money.Amount) money.Amount {
	return frame.Add(lens)
}

// Rollup computes every derived field from in. It is pure and idempotent:
// recomputing from the same inputs always yields the same totals.
//
//	medicineDue  = max(0, medicinePrice - medicineAdvance)
//	totalAmount  = visitPrice + medicinePrice + framePrice + lensePrice
//	totalAdvance = visitPrice + medicineAdvance + opticalAdvance
//	totalDue     = max(0, framePrice + lensePrice - opticalAdvance + medicineDue)
func Rollup(in Inputs) Totals {
	optical := OpticalPrice(in.FramePrice, in.LensePrice)
	medicineDue := money.SubFloor(in.MedicinePrice, in.MedicineAdvance)

	return Totals{
		MedicineDue:  medicineDue,
		TotalAmount:  money.Sum(in.VisitPrice, in.MedicinePrice, in.FramePrice, in.LensePrice),
		TotalAdvance: money.Sum(in.VisitPrice, in.MedicineAdvance, in.OpticalAdvance),
		TotalDue:     money.ClampZero(optical.Sub(in.OpticalAdvance).Add(medicineDue)),
		OpticalPrice: optical,
	}
}

// Validate rejects negative raw amounts.
func Validate(in Inputs) error {
	fields := []struct {
		name string
		v    money.Amount
	}{
		{"visitPrice", in.VisitPrice},
		{"framePrice", in.FramePrice},
		{"lensePrice", in.LensePrice},
		{"medicinePrice", in.MedicinePrice},
		{"medicineAdvance", in.MedicineAdvance},
		{"opticalAdvance", in.OpticalAdvance},
	}
	for _, f := range fields {
		if f.v.IsNegative() {
			return fmt.Errorf("%s must not be negative", f.name)
		}
	}
	return nil
}

// Billable is implemented by anything that carries billing inputs and the
// totals derived from them.
type Billable interface {
	BillingInputs() Inputs
	SetTotals(Totals)
	Touch(time.Time)
}

// Stamper applies the roll-up and stamps the modification time.
type Stamper struct {
	now func() time.Time
}

// Stamp returns a Stamper using now as its clock. A nil clock means time.Now.
func Stamp(now func() time.Time) *Stamper {
	if now == nil {
		now = time.Now
	}
	return &Stamper{now: now}
}

// Apply recomputes b's totals and sets its updated timestamp.
func (s *Stamper) Apply(b Billable) {
	b.SetTotals(Rollup(b.BillingInputs()))
	b.Touch(s.now().UTC())
}
