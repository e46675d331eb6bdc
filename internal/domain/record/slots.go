package record

import (
	"context"
	"fmt"
	"time"
)

// The clinic books in 30-minute slots from 09:00 to 18:00 inclusive.
const (
	firstSlotMinute = 9 * 60
	lastSlotMinute  = 18 * 60
	slotMinutes     = 30
)

// SlotGrid returns every bookable "HH:MM" slot of a day.
func SlotGrid() []string {
	var out []string
	for m := firstSlotMinute; m <= lastSlotMinute; m += slotMinutes {
		out = append(out, fmt.Sprintf("%02d:%02d", m/60, m%60))
	}
	return out
}

// ValidSlot reports whether s is one of the grid slots.
func ValidSlot(s string) bool {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	return m >= firstSlotMinute && m <= lastSlotMinute && (m-firstSlotMinute)%slotMinutes == 0
}

// AvailableSlots returns the grid for date minus slots held by appointments
// that are not cancelled. Past days have no slots; on the current day slots
// that already started are dropped. It only guides the booking form:
// BookAppointment does not reserve or check slots.
func (s *Service) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	day, err := time.ParseInLocation(dayLayout, date, s.loc)
	if err != nil {
		return nil, errInvalidDate
	}

	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	if day.Before(today) {
		return []string{}, nil
	}

	taken, err := s.takenSlots(ctx, date)
	if err != nil {
		return nil, err
	}

	free := make([]string, 0, len(SlotGrid()))
	for _, slot := range SlotGrid() {
		if taken[slot] {
			continue
		}
		if day.Equal(today) {
			t, _ := time.Parse("15:04", slot)
			start := today.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
			if !start.After(now) {
				continue
			}
		}
		free = append(free, slot)
	}
	return free, nil
}

func (s *Service) takenSlots(ctx context.Context, date string) (map[string]bool, error) {
	recs, err := s.repo.ListByPreferredDate(ctx, date)
	if err != nil {
		return nil, err
	}
	taken := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.PreferredTime == "" || r.Status == StatusCancelled {
			continue
		}
		taken[r.PreferredTime] = true
	}
	return taken, nil
}
