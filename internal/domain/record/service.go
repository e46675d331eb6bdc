package record

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
	"github.com/clinicdesk/clinicdesk/internal/platform/apierr"
	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
)

var errInvalidDate = apierr.Validation("date must be in YYYY-MM-DD format")

// BookingObserver is told about every accepted booking.
type BookingObserver interface {
	ObserveBooking(repeated bool)
}

type Service struct {
	repo     Repository
	observer BookingObserver
	loc      *time.Location
	now      func() time.Time
	stamp    *billing.Stamper
}

// NewService builds the record service. loc is the clinic's time zone and
// decides what "today" means for slots; nil means UTC. obs may be nil.
func NewService(repo Repository, loc *time.Location, obs BookingObserver) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{repo: repo, observer: obs, loc: loc, now: time.Now}
	s.stamp = billing.Stamp(func() time.Time { return s.now() })
	return s
}

// newBusinessID returns a time-ordered id such as "1736935200000-1f2e3d4c".
func (s *Service) newBusinessID() string {
	return fmt.Sprintf("%d-%s", s.now().UnixMilli(), uuid.NewString()[:8])
}

func notFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apierr.NotFound("record")
	}
	return err
}

func validateSchedule(sc Scheduling) error {
	if sc.PreferredDate != "" {
		if _, err := time.Parse(dayLayout, sc.PreferredDate); err != nil {
			return apierr.Validation("preferredDate must be in YYYY-MM-DD format")
		}
	}
	if sc.PreferredTime != "" && !ValidSlot(sc.PreferredTime) {
		return apierr.Validation("preferredTime must be a 30-minute slot between 09:00 and 18:00")
	}
	if sc.Status != "" && !validStatuses[sc.Status] {
		return apierr.Validation("invalid status: %s", sc.Status)
	}
	return nil
}

func trimContact(c *Contact) {
	c.PtName = strings.TrimSpace(c.PtName)
	c.PhoneNo = strings.TrimSpace(c.PhoneNo)
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
}

// BookAppointment stores a public booking. Prices cannot be set from the
// booking form; they start at zero. Slots are not reserved: two bookings may
// name the same date and time and both are kept.
func (s *Service) BookAppointment(ctx context.Context, in *Record) (*Record, error) {
	trimContact(&in.Contact)
	if in.PtName == "" {
		return nil, apierr.Validation("ptName is required")
	}
	if in.PhoneNo == "" && in.Email == "" {
		return nil, apierr.Validation("phoneNo or email is required")
	}
	in.Status = ""
	if err := validateSchedule(in.Scheduling); err != nil {
		return nil, err
	}

	rec := &Record{
		Kind:       KindAppointment,
		Contact:    in.Contact,
		Scheduling: in.Scheduling,
	}
	rec.Status = StatusPending
	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}

	if s.observer != nil {
		s.observer.ObserveBooking(rec.Repeated)
	}
	zerolog.Ctx(ctx).Info().
		Str("record_id", rec.ID).
		Bool("repeated", rec.Repeated).
		Msg("appointment booked")
	return rec, nil
}

// CreateOrder stores a record entered by staff at the counter.
func (s *Service) CreateOrder(ctx context.Context, in *Record) (*Record, error) {
	trimContact(&in.Contact)
	if in.PtName == "" {
		return nil, apierr.Validation("ptName is required")
	}
	if in.PhoneNo == "" {
		return nil, apierr.Validation("phoneNo is required")
	}
	if err := validateSchedule(in.Scheduling); err != nil {
		return nil, err
	}
	if err := billing.Validate(in.Inputs); err != nil {
		return nil, apierr.Validation("%s", err.Error())
	}
	if in.DeliveryStatus != "" && !validDeliveryStatuses[in.DeliveryStatus] {
		return nil, apierr.Validation("invalid deliveryStatus: %s", in.DeliveryStatus)
	}

	rec := &Record{
		BillNo:         strings.TrimSpace(in.BillNo),
		Kind:           KindOrder,
		Contact:        in.Contact,
		Scheduling:     in.Scheduling,
		Inputs:         in.Inputs,
		Clinical:       in.Clinical,
		DeliveryStatus: in.DeliveryStatus,
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}
	if rec.DeliveryStatus == "" {
		rec.DeliveryStatus = DeliveryPending
	}
	if err := s.insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// insert fills the computed fields of a new record and stores it. The
// repeated flag is decided here once and never recomputed.
func (s *Service) insert(ctx context.Context, rec *Record) error {
	repeated, err := s.repo.HasBilledVisit(ctx, rec.PtName, rec.PhoneNo, rec.Email)
	if err != nil {
		return err
	}
	rec.Repeated = repeated
	rec.ID = s.newBusinessID()
	rec.CreatedAt = s.now().UTC()
	s.stamp.Apply(rec)
	return s.repo.Create(ctx, rec)
}

func (s *Service) GetRecord(ctx context.Context, id string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.Validation("id is required")
	}
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return rec, nil
}

// UpdateAppointmentStatus sets the status of the record with business id
// id. Any status may follow any other.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, id, status string) (*Record, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.Validation("id is required")
	}
	if status == "" {
		return nil, apierr.Validation("status is required")
	}
	if !validStatuses[status] {
		return nil, apierr.Validation("invalid status: %s", status)
	}
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Status = status
	return rec, s.save(ctx, rec)
}

// UpdateRecord replaces the editable groups of a record with those in patch
// and recomputes its totals. Identity, creation time and the repeated flag
// are kept. An empty status or delivery status keeps the current one.
func (s *Service) UpdateRecord(ctx context.Context, id string, patch *Record) (*Record, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	trimContact(&patch.Contact)
	if patch.PtName == "" {
		return nil, apierr.Validation("ptName is required")
	}
	if err := validateSchedule(patch.Scheduling); err != nil {
		return nil, err
	}
	if err := billing.Validate(patch.Inputs); err != nil {
		return nil, apierr.Validation("%s", err.Error())
	}
	if patch.DeliveryStatus != "" && !validDeliveryStatuses[patch.DeliveryStatus] {
		return nil, apierr.Validation("invalid deliveryStatus: %s", patch.DeliveryStatus)
	}

	status := rec.Status
	rec.Contact = patch.Contact
	rec.Scheduling = patch.Scheduling
	if rec.Status == "" {
		rec.Status = status
	}
	rec.Inputs = patch.Inputs
	rec.Clinical = patch.Clinical
	if patch.DeliveryStatus != "" {
		rec.DeliveryStatus = patch.DeliveryStatus
	}
	rec.BillNo = strings.TrimSpace(patch.BillNo)
	if rec.BillNo != "" {
		rec.Kind = KindOrder
	}
	return rec, s.save(ctx, rec)
}

func (s *Service) UpdateDeliveryStatus(ctx context.Context, id, status string) (*Record, error) {
	if status == "" {
		return nil, apierr.Validation("deliveryStatus is required")
	}
	if !validDeliveryStatuses[status] {
		return nil, apierr.Validation("invalid deliveryStatus: %s", status)
	}
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.DeliveryStatus = status
	return rec, s.save(ctx, rec)
}

func (s *Service) save(ctx context.Context, rec *Record) error {
	s.stamp.Apply(rec)
	if err := s.repo.Update(ctx, rec); err != nil {
		return notFound(err)
	}
	return nil
}

// ListAppointments returns records newest first, filtered by q with dates
// compared against the preferred visit date.
func (s *Service) ListAppointments(ctx context.Context, q Query) ([]*Record, error) {
	q.DateField = ByPreferredDate
	return s.list(ctx, q)
}

// ListRecords is the patients screen: dates compare against creation day.
func (s *Service) ListRecords(ctx context.Context, q Query) ([]*Record, error) {
	q.DateField = ByCreatedAt
	return s.list(ctx, q)
}

func (s *Service) list(ctx context.Context, q Query) ([]*Record, error) {
	recs, err := s.repo.ListNewestFirst(ctx, q.Kind)
	if err != nil {
		return nil, err
	}
	return Apply(recs, q.Predicates()...), nil
}
