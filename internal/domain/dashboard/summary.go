// Package dashboard aggregates the read-only overview shown on the staff
// home screens.
package dashboard

import (
	"math"

	"github.com/clinicdesk/clinicdesk/internal/domain/record"
	"github.com/clinicdesk/clinicdesk/pkg/money"
)

// Summary is computed from a snapshot of records.
type Summary struct {
	Total            int            `json:"total"`
	Today            int            `json:"today"`
	Repeated         int            `json:"repeated"`
	ByStatus         map[string]int `json:"byStatus"`
	ByDeliveryStatus map[string]int `json:"byDeliveryStatus"`
	TotalAmount      money.Amount   `json:"totalAmount"`
	TotalAdvance     money.Amount   `json:"totalAdvance"`
	TotalDue         money.Amount   `json:"totalDue"`
	CompletionRate   float64        `json:"completionRate"`
}

// Summarize counts and sums records. today is the clinic's current day as
// "YYYY-MM-DD" and is compared against each record's preferred date. The
// input is never modified.
func Summarize(records []*record.Record, today string) Summary {
	s := Summary{
		ByStatus:         make(map[string]int),
		ByDeliveryStatus: make(map[string]int),
	}
	for _, st := range record.Statuses() {
		s.ByStatus[st] = 0
	}
	for _, st := range record.DeliveryStatuses() {
		s.ByDeliveryStatus[st] = 0
	}

	var amount, advance, due []money.Amount
	for _, r := range records {
		s.Total++
		if r.Status != "" {
			s.ByStatus[r.Status]++
		}
		if r.DeliveryStatus != "" {
			s.ByDeliveryStatus[r.DeliveryStatus]++
		}
		if r.Repeated {
			s.Repeated++
		}
		if day, ok := record.NormalizeDate(r.PreferredDate); ok && day == today {
			s.Today++
		}
		amount = append(amount, r.TotalAmount)
		advance = append(advance, r.TotalAdvance)
		due = append(due, r.TotalDue)
	}
	s.TotalAmount = money.Sum(amount...)
	s.TotalAdvance = money.Sum(advance...)
	s.TotalDue = money.Sum(due...)
	s.CompletionRate = CompletionRate(s.ByStatus[record.StatusCompleted], s.Total)
	return s
}

// CompletionRate is completed/total as a percentage with one decimal. An
// empty collection has a rate of 0.
func CompletionRate(completed, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(total)*1000) / 10
}
