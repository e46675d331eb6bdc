package record

import (
	"strings"
	"time"
)

// DateField selects which record date a date predicate compares against.
type DateField int

const (
	ByPreferredDate DateField = iota
	ByCreatedAt
)

// Query is what a list screen asks for. Empty fields and "all" match
// everything.
type Query struct {
	Search         string
	Status         string
	DeliveryStatus string
	Date           string
	DateField      DateField
	Kind           Kind
}

// Predicate reports whether a record should be kept.
type Predicate func(r *Record) bool

const dayLayout = "2006-01-02"

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	dayLayout,
}

// NormalizeDate reduces a date or timestamp string to its UTC calendar day,
// "YYYY-MM-DD". ok is false when s cannot be parsed.
func NormalizeDate(s string) (day string, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(dayLayout), true
		}
	}
	return "", false
}

func isAll(v string) bool {
	v = strings.TrimSpace(v)
	return v == "" || strings.EqualFold(v, "all")
}

// MatchSearch is a case-insensitive substring match on name, phone, bill
// number or email.
func MatchSearch(term string) Predicate {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	return func(r *Record) bool {
		for _, v := range []string{r.PtName, r.PhoneNo, r.BillNo, r.Email} {
			if strings.Contains(strings.ToLower(v), term) {
				return true
			}
		}
		return false
	}
}

func MatchStatus(status string) Predicate {
	if isAll(status) {
		return nil
	}
	return func(r *Record) bool { return r.Status == status }
}

func MatchDeliveryStatus(status string) Predicate {
	if isAll(status) {
		return nil
	}
	return func(r *Record) bool { return r.DeliveryStatus == status }
}

// MatchDate keeps records whose chosen date falls on the given day. Both
// sides are normalised; anything unparseable is excluded.
func MatchDate(date string, field DateField) Predicate {
	if strings.TrimSpace(date) == "" {
		return nil
	}
	want, ok := NormalizeDate(date)
	if !ok {
		return func(*Record) bool { return false }
	}
	return func(r *Record) bool {
		var have string
		switch field {
		case ByCreatedAt:
			if r.CreatedAt.IsZero() {
				return false
			}
			have = r.CreatedAt.UTC().Format(dayLayout)
		default:
			day, ok := NormalizeDate(r.PreferredDate)
			if !ok {
				return false
			}
			have = day
		}
		return have == want
	}
}

// Predicates turns q into the list of predicates to AND together.
func (q Query) Predicates() []Predicate {
	var preds []Predicate
	for _, p := range []Predicate{
		MatchSearch(q.Search),
		MatchStatus(q.Status),
		MatchDeliveryStatus(q.DeliveryStatus),
		MatchDate(q.Date, q.DateField),
	} {
		if p != nil {
			preds = append(preds, p)
		}
	}
	return preds
}

// Apply returns the records that satisfy every predicate, in their original
// order. The input slice is never modified.
func Apply(records []*Record, preds ...Predicate) []*Record {
	out := make([]*Record, 0, len(records))
next:
	for _, r := range records {
		for _, p := range preds {
			if p != nil && !p(r) {
				continue next
			}
		}
		out = append(out, r)
	}
	return out
}
