package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/apierr"
	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func notFound(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apierr.NotFound("service")
	}
	return err
}

func validate(e *Entry) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return apierr.Validation("name is required")
	}
	if e.Price.IsNegative() {
		return apierr.Validation("price must not be negative")
	}
	if e.MaxDiscount.IsNegative() {
		return apierr.Validation("maxDiscount must not be negative")
	}
	if e.MaxDiscount.Cmp(e.Price) > 0 {
		return apierr.Validation("maxDiscount must not exceed price")
	}
	if e.Category == "" {
		e.Category = "other"
	}
	if !validCategories[e.Category] {
		return apierr.Validation("invalid category: %s", e.Category)
	}
	return nil
}

func (s *Service) Create(ctx context.Context, e *Entry) error {
	if err := validate(e); err != nil {
		return err
	}
	if e.IsActive == nil {
		active := true
		e.IsActive = &active
	}
	e.StoreID = ""
	e.CreatedAt = s.now().UTC()
	e.UpdatedAt = e.CreatedAt
	return s.repo.Create(ctx, e)
}

func (s *Service) Get(ctx context.Context, id string) (*Entry, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apierr.Validation("id is required")
	}
	e, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Update replaces the editable fields of the entry with id. A missing
// isActive keeps the current value.
func (s *Service) Update(ctx context.Context, id string, patch *Entry) (*Entry, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validate(patch); err != nil {
		return nil, err
	}

	cur.Name = patch.Name
	cur.Description = patch.Description
	cur.Price = patch.Price
	cur.Duration = patch.Duration
	cur.Category = patch.Category
	cur.MaxDiscount = patch.MaxDiscount
	if patch.IsActive != nil {
		cur.IsActive = patch.IsActive
	}
	cur.UpdatedAt = s.now().UTC()

	if err := s.repo.Update(ctx, cur); err != nil {
		return nil, notFound(err)
	}
	return cur, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apierr.Validation("id is required")
	}
	return notFound(s.repo.Delete(ctx, id))
}

// List returns every entry for staff screens.
func (s *Service) List(ctx context.Context) ([]*Entry, error) {
	return s.repo.List(ctx, false)
}

// ListActive returns what the public booking page may offer.
func (s *Service) ListActive(ctx context.Context) ([]*Entry, error) {
	return s.repo.List(ctx, true)
}
