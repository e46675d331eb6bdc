package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinicdesk/internal/domain/catalog"
	"github.com/clinicdesk/clinicdesk/internal/domain/record"
	"github.com/clinicdesk/clinicdesk/internal/domain/staff"
)

type fakeRecords struct {
	byKind map[record.Kind][]*record.Record
	err    error
}

func (f *fakeRecords) ListRecords(_ context.Context, q record.Query) ([]*record.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byKind[q.Kind], nil
}

type fakeStaff struct{ err error }

func (f fakeStaff) List(context.Context) ([]staff.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []staff.Profile{{ID: "s1", Email: "admin@clinic.test", Role: "admin"}}, nil
}

type fakeCatalog struct{ err error }

func (f fakeCatalog) List(context.Context) ([]*catalog.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*catalog.Entry{{Name: "Consult"}}, nil
}

func testRecords() *fakeRecords {
	return &fakeRecords{byKind: map[record.Kind][]*record.Record{
		record.KindAppointment: {rec(record.StatusPending, "", "2025-01-15", 0)},
		record.KindOrder: {
			rec(record.StatusCompleted, record.DeliveryReady, "2025-01-14", 500),
		},
	}}
}

func TestOverview(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	svc := NewService(testRecords(), fakeStaff{}, fakeCatalog{}, ist)
	// 20:00 UTC on the 14th is already the 15th in the clinic's zone.
	svc.now = func() time.Time { return time.Date(2025, 1, 14, 20, 0, 0, 0, time.UTC) }

	ov, err := svc.Overview(context.Background())
	require.NoError(t, err)
	assert.Len(t, ov.Staff, 1)
	assert.Len(t, ov.Appointments, 1)
	assert.Len(t, ov.Services, 1)
	assert.Len(t, ov.Patients, 1)
	assert.Equal(t, 2, ov.Summary.Total)
	assert.Equal(t, 1, ov.Summary.Today)
	assert.Equal(t, 50.0, ov.Summary.CompletionRate)
}

func TestOverview_AllOrNothing(t *testing.T) {
	boom := errors.New("connection reset")
	cases := map[string]*Service{
		"staff":    NewService(testRecords(), fakeStaff{err: boom}, fakeCatalog{}, nil),
		"records":  NewService(&fakeRecords{err: boom}, fakeStaff{}, fakeCatalog{}, nil),
		"services": NewService(testRecords(), fakeStaff{}, fakeCatalog{err: boom}, nil),
	}
	for name, svc := range cases {
		t.Run(name, func(t *testing.T) {
			ov, err := svc.Overview(context.Background())
			assert.Nil(t, ov)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestHandler_Overview(t *testing.T) {
	h := NewHandler(NewService(testRecords(), fakeStaff{}, fakeCatalog{}, nil))
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, h.Overview(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, key := range []string{"staff", "appointments", "services", "patients", "summary"} {
		assert.Contains(t, body, key)
	}
}

func TestHandler_Overview_Failure(t *testing.T) {
	h := NewHandler(NewService(&fakeRecords{err: errors.New("store down")}, fakeStaff{}, fakeCatalog{}, nil))
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	err := h.Overview(c)
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusInternalServerError, he.Code)
}
