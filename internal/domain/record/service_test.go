package record

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/apierr"
	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
	"github.com/clinicdesk/clinicdesk/pkg/money"
)

var testNow = time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)

type countingObserver struct {
	repeated, fresh int
}

func (o *countingObserver) ObserveBooking(repeated bool) {
	if repeated {
		o.repeated++
	} else {
		o.fresh++
	}
}

func newTestService() *Service {
	svc := NewService(NewDocRepo(docstore.NewMemoryStore()), time.UTC, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func booking(name, phone string) *Record {
	r := &Record{}
	r.PtName = name
	r.PhoneNo = phone
	return r
}

func TestBookAppointment_Defaults(t *testing.T) {
	svc := newTestService()
	in := booking("  Asha ", "999")
	in.PreferredDate = "2025-01-16"
	in.PreferredTime = "10:30"
	in.Status = StatusCompleted
	in.VisitPrice = money.FromInt(500)

	rec, err := svc.BookAppointment(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.PtName != "Asha" {
		t.Errorf("expected trimmed name, got %q", rec.PtName)
	}
	if rec.Status != StatusPending {
		t.Errorf("expected pending, got %s", rec.Status)
	}
	if rec.Kind != KindAppointment {
		t.Errorf("expected appointment kind, got %s", rec.Kind)
	}
	if !rec.VisitPrice.IsZero() || !rec.TotalAmount.IsZero() {
		t.Error("booking form must not carry prices")
	}
	if !strings.HasPrefix(rec.ID, "1736928000000-") {
		t.Errorf("unexpected business id %q", rec.ID)
	}
	if rec.StoreID == "" {
		t.Error("expected store id to be assigned")
	}
	if !rec.CreatedAt.Equal(testNow) || !rec.UpdatedAt.Equal(testNow) {
		t.Error("expected timestamps from the service clock")
	}
}

func TestBookAppointment_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name string
		rec  func() *Record
		want string
	}{
		{"missing name", func() *Record { return booking("", "999") }, "ptName is required"},
		{"missing contact", func() *Record { return booking("Asha", "") }, "phoneNo or email is required"},
		{"bad date", func() *Record {
			r := booking("Asha", "999")
			r.PreferredDate = "16-01-2025"
			return r
		}, "preferredDate must be in YYYY-MM-DD format"},
		{"off-grid time", func() *Record {
			r := booking("Asha", "999")
			r.PreferredTime = "10:15"
			return r
		}, "preferredTime must be a 30-minute slot between 09:00 and 18:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.BookAppointment(context.Background(), tt.rec())
			if !errors.Is(err, apierr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if err.Error() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, err.Error())
			}
		})
	}
}

func TestBookAppointment_EmailIsEnoughContact(t *testing.T) {
	svc := newTestService()
	in := booking("Asha", "")
	in.Email = " Asha@Example.com "
	rec, err := svc.BookAppointment(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Email != "asha@example.com" {
		t.Errorf("expected normalised email, got %q", rec.Email)
	}
}

func TestBookAppointment_RepeatedAfterBilledVisit(t *testing.T) {
	svc := newTestService()
	obs := &countingObserver{}
	svc.observer = obs
	ctx := context.Background()

	first, err := svc.BookAppointment(ctx, booking("Asha", "999"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Repeated {
		t.Fatal("first booking must not be repeated")
	}

	// Without a positive total the earlier visit does not count.
	second, _ := svc.BookAppointment(ctx, booking("Asha", "999"))
	if second.Repeated {
		t.Fatal("unbilled history must not mark a booking repeated")
	}

	patch := *first
	patch.VisitPrice = money.FromInt(300)
	if _, err := svc.UpdateRecord(ctx, first.ID, &patch); err != nil {
		t.Fatalf("update: %v", err)
	}

	third, err := svc.BookAppointment(ctx, booking("Asha", "999"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !third.Repeated {
		t.Error("expected repeated=true once the first visit was billed")
	}
	if obs.fresh != 2 || obs.repeated != 1 {
		t.Errorf("unexpected observer counts: fresh=%d repeated=%d", obs.fresh, obs.repeated)
	}

	// Name+email matches too.
	billed := &Record{}
	billed.PtName = "Ravi"
	billed.PhoneNo = "111"
	billed.Email = "ravi@example.com"
	billed.MedicinePrice = money.FromInt(40)
	if _, err := svc.CreateOrder(ctx, billed); err != nil {
		t.Fatalf("create order: %v", err)
	}
	byEmail := booking("Ravi", "")
	byEmail.Email = "ravi@example.com"
	rec, _ := svc.BookAppointment(ctx, byEmail)
	if !rec.Repeated {
		t.Error("expected name+email match to mark repeated")
	}
}

func TestBookAppointment_SharedSlotAndPastDate(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	in := booking("Asha", "999")
	in.PreferredDate = "2025-01-16"
	in.PreferredTime = "10:00"
	if _, err := svc.BookAppointment(ctx, in); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	again := booking("Meera", "123")
	again.PreferredDate = "2025-01-16"
	again.PreferredTime = "10:00"
	if _, err := svc.BookAppointment(ctx, again); err != nil {
		t.Errorf("expected second booking of the same slot to be kept, got %v", err)
	}

	late := booking("Vikram", "456")
	late.PreferredDate = "2025-01-16"
	late.PreferredTime = "18:00"
	if _, err := svc.BookAppointment(ctx, late); err != nil {
		t.Errorf("expected 18:00 to be bookable, got %v", err)
	}

	past := booking("Ravi", "789")
	past.PreferredDate = "2025-01-14"
	if _, err := svc.BookAppointment(ctx, past); err != nil {
		t.Errorf("expected past date to be accepted, got %v", err)
	}

	recs, _ := svc.ListAppointments(ctx, Query{Date: "2025-01-16"})
	if len(recs) != 3 {
		t.Errorf("expected 3 bookings on 2025-01-16, got %d", len(recs))
	}
}

func TestCreateOrder(t *testing.T) {
	svc := newTestService()
	in := booking("Asha", "999")
	in.BillNo = " B-1 "
	in.VisitPrice = money.FromInt(100)
	in.MedicinePrice = money.FromInt(200)
	in.FramePrice = money.FromInt(150)
	in.LensePrice = money.FromInt(50)

	rec, err := svc.CreateOrder(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Kind != KindOrder || rec.BillNo != "B-1" {
		t.Errorf("unexpected kind/billNo: %s %q", rec.Kind, rec.BillNo)
	}
	if rec.TotalAmount.String() != "500" {
		t.Errorf("expected totalAmount 500, got %s", rec.TotalAmount)
	}
	if rec.Status != StatusPending || rec.DeliveryStatus != DeliveryPending {
		t.Errorf("unexpected defaults: %s %s", rec.Status, rec.DeliveryStatus)
	}
}

func TestCreateOrder_Validation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, err := svc.CreateOrder(ctx, booking("Asha", "")); err == nil || err.Error() != "phoneNo is required" {
		t.Errorf("expected phoneNo error, got %v", err)
	}
	neg := booking("Asha", "999")
	neg.OpticalAdvance = money.FromInt(-5)
	if _, err := svc.CreateOrder(ctx, neg); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error for negative amount, got %v", err)
	}
	bad := booking("Asha", "999")
	bad.DeliveryStatus = "lost"
	if _, err := svc.CreateOrder(ctx, bad); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error for delivery status, got %v", err)
	}
}

func TestUpdateAppointmentStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	rec, _ := svc.BookAppointment(ctx, booking("Asha", "999"))

	later := testNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	// Any transition is allowed, including back to pending.
	for _, status := range []string{StatusCompleted, StatusCancelled, StatusPending} {
		got, err := svc.UpdateAppointmentStatus(ctx, rec.ID, status)
		if err != nil {
			t.Fatalf("%s: %v", status, err)
		}
		if got.Status != status {
			t.Errorf("expected %s, got %s", status, got.Status)
		}
		if !got.UpdatedAt.Equal(later) {
			t.Error("expected updatedAt to move")
		}
	}

	if _, err := svc.UpdateAppointmentStatus(ctx, "", StatusPending); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error for missing id, got %v", err)
	}
	if _, err := svc.UpdateAppointmentStatus(ctx, rec.ID, "done"); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error for bad status, got %v", err)
	}
	if _, err := svc.UpdateAppointmentStatus(ctx, "nope", StatusPending); !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateRecord_RecomputesTotalsAndKeepsIdentity(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	rec, _ := svc.BookAppointment(ctx, booking("Asha", "999"))

	patch := &Record{ID: "ignored", BillNo: "B-77"}
	patch.PtName = "Asha"
	patch.PhoneNo = "999"
	patch.MedicinePrice = money.FromInt(500)
	patch.MedicineAdvance = money.FromInt(800)
	patch.FramePrice = money.FromInt(100)
	patch.Repeated = true

	got, err := svc.UpdateRecord(ctx, rec.ID, patch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != rec.ID || got.StoreID != rec.StoreID {
		t.Error("identity must not change")
	}
	if got.Repeated {
		t.Error("repeated is fixed at insert")
	}
	if got.Kind != KindOrder {
		t.Errorf("expected order once a bill number is attached, got %s", got.Kind)
	}
	if got.Status != StatusPending {
		t.Errorf("empty status must keep the current one, got %q", got.Status)
	}
	if !got.MedicineDue.IsZero() {
		t.Errorf("expected medicineDue 0, got %s", got.MedicineDue)
	}
	if got.TotalDue.String() != "100" {
		t.Errorf("expected totalDue 100, got %s", got.TotalDue)
	}

	stored, _ := svc.GetRecord(ctx, rec.ID)
	if stored.TotalAmount.String() != "600" {
		t.Errorf("expected stored totalAmount 600, got %s", stored.TotalAmount)
	}
}

func TestUpdateRecord_NotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.UpdateRecord(context.Background(), "missing", booking("Asha", "999"))
	if !errors.Is(err, apierr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestUpdateDeliveryStatus(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	rec, _ := svc.CreateOrder(ctx, booking("Asha", "999"))

	got, err := svc.UpdateDeliveryStatus(ctx, rec.ID, DeliveryReady)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.DeliveryStatus != DeliveryReady {
		t.Errorf("expected %s, got %s", DeliveryReady, got.DeliveryStatus)
	}
	if _, err := svc.UpdateDeliveryStatus(ctx, rec.ID, "shipped"); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestListAppointments_NewestFirstThenFiltered(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	for i, name := range []string{"Asha", "Vikram", "Asha Rao"} {
		at := testNow.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		in := booking(name, "99"+name[:1])
		in.PreferredDate = "2025-01-20"
		if _, err := svc.BookAppointment(ctx, in); err != nil {
			t.Fatalf("book %s: %v", name, err)
		}
	}

	all, err := svc.ListAppointments(ctx, Query{Status: "all"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 3 || all[0].PtName != "Asha Rao" || all[2].PtName != "Asha" {
		t.Fatalf("expected newest first, got %v", names(all))
	}

	asha, _ := svc.ListAppointments(ctx, Query{Search: "asha", Date: "2025-01-20"})
	if len(asha) != 2 {
		t.Errorf("expected 2 matches, got %v", names(asha))
	}
	none, _ := svc.ListAppointments(ctx, Query{Date: "2025-01-21"})
	if len(none) != 0 {
		t.Errorf("expected no matches, got %v", names(none))
	}
}

func TestListRecords_ByKindAndCreationDay(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	svc.BookAppointment(ctx, booking("Asha", "999"))
	svc.CreateOrder(ctx, booking("Vikram", "123"))

	orders, err := svc.ListRecords(ctx, Query{Kind: KindOrder, Date: "2025-01-15"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 1 || orders[0].PtName != "Vikram" {
		t.Errorf("unexpected result %v", names(orders))
	}
}

func names(recs []*Record) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.PtName)
	}
	return out
}

func TestAvailableSlots(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	grid, err := svc.AvailableSlots(ctx, "2025-01-16")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(grid) != 19 || grid[0] != "09:00" || grid[18] != "18:00" {
		t.Fatalf("unexpected grid %v", grid)
	}

	taken := booking("Asha", "999")
	taken.PreferredDate = "2025-01-16"
	taken.PreferredTime = "09:30"
	svc.BookAppointment(ctx, taken)

	cancelled := booking("Vikram", "123")
	cancelled.PreferredDate = "2025-01-16"
	cancelled.PreferredTime = "10:00"
	rec, _ := svc.BookAppointment(ctx, cancelled)
	svc.UpdateAppointmentStatus(ctx, rec.ID, StatusCancelled)

	free, _ := svc.AvailableSlots(ctx, "2025-01-16")
	if len(free) != 18 {
		t.Errorf("expected 18 free slots, got %d", len(free))
	}
	for _, s := range free {
		if s == "09:30" {
			t.Error("09:30 is booked")
		}
	}

	past, _ := svc.AvailableSlots(ctx, "2025-01-14")
	if len(past) != 0 {
		t.Errorf("expected no slots in the past, got %v", past)
	}

	svc.now = func() time.Time { return time.Date(2025, 1, 15, 16, 45, 0, 0, time.UTC) }
	today, _ := svc.AvailableSlots(ctx, "2025-01-15")
	if len(today) != 3 || today[0] != "17:00" || today[2] != "18:00" {
		t.Errorf("expected only later slots today, got %v", today)
	}

	if _, err := svc.AvailableSlots(ctx, "tomorrow"); !errors.Is(err, apierr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestValidSlot(t *testing.T) {
	for _, s := range []string{"09:00", "12:30", "17:30", "18:00"} {
		if !ValidSlot(s) {
			t.Errorf("%s should be valid", s)
		}
	}
	for _, s := range []string{"08:30", "18:30", "10:15", "9am", ""} {
		if ValidSlot(s) {
			t.Errorf("%s should be invalid", s)
		}
	}
}
