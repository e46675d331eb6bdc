package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/catalog"
	"github.com/clinicdesk/clinicdesk/internal/domain/record"
	"github.com/clinicdesk/clinicdesk/internal/domain/staff"
)

type RecordLister interface {
	ListRecords(ctx context.Context, q record.Query) ([]*record.Record, error)
}

type StaffLister interface {
	List(ctx context.Context) ([]staff.Profile, error)
}

type CatalogLister interface {
	List(ctx context.Context) ([]*catalog.Entry, error)
}

// Overview is everything the dashboard renders in one response.
type Overview struct {
	Staff        []staff.Profile  `json:"staff"`
	Appointments []*record.Record `json:"appointments"`
	Services     []*catalog.Entry `json:"services"`
	Patients     []*record.Record `json:"patients"`
	Summary      Summary          `json:"summary"`
	GeneratedAt  time.Time        `json:"generatedAt"`
}

type Service struct {
	records  RecordLister
	staff    StaffLister
	services CatalogLister
	loc      *time.Location
	now      func() time.Time
}

func NewService(records RecordLister, staff StaffLister, services CatalogLister, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{records: records, staff: staff, services: services, loc: loc, now: time.Now}
}

// Overview reads every collection in turn, newest first. Any failed read
// fails the whole overview.
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	people, err := s.staff.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load staff: %w", err)
	}
	appts, err := s.records.ListRecords(ctx, record.Query{Kind: record.KindAppointment})
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	services, err := s.services.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	patients, err := s.records.ListRecords(ctx, record.Query{Kind: record.KindOrder})
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	now := s.now()
	all := make([]*record.Record, 0, len(appts)+len(patients))
	all = append(all, appts...)
	all = append(all, patients...)

	return &Overview{
		Staff:        people,
		Appointments: appts,
		Services:     services,
		Patients:     patients,
		Summary:      Summarize(all, now.In(s.loc).Format("2006-01-02")),
		GeneratedAt:  now.UTC(),
	}, nil
}
