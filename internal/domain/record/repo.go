package record

import (
	"context"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	// GetByID looks a record up by its business id.
	GetByID(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, r *Record) error
	// ListNewestFirst returns every record of kind (all kinds when empty),
	// most recently created first.
	ListNewestFirst(ctx context.Context, kind Kind) ([]*Record, error)
	ListByPreferredDate(ctx context.Context, date string) ([]*Record, error)
	// HasBilledVisit reports whether a record with the same name and phone,
	// or the same name and email, already carries a positive total.
	HasBilledVisit(ctx context.Context, name, phone, email string) (bool, error)
}

type docRepo struct {
	coll docstore.Collection
}

// NewDocRepo returns a Repository over the patients collection of store.
func NewDocRepo(store docstore.Store) Repository {
	return &docRepo{coll: store.Collection(docstore.Patients)}
}

func (r *docRepo) Create(ctx context.Context, rec *Record) error {
	if err := r.coll.Insert(ctx, rec); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *docRepo) GetByID(ctx context.Context, id string) (*Record, error) {
	var rec Record
	if err := r.coll.FindOne(ctx, docstore.Filter{docstore.Eq("id", id)}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *docRepo) Update(ctx context.Context, rec *Record) error {
	return r.coll.Replace(ctx, rec)
}

func (r *docRepo) ListNewestFirst(ctx context.Context, kind Kind) ([]*Record, error) {
	var f docstore.Filter
	if kind != "" {
		f = append(f, docstore.Eq("kind", string(kind)))
	}
	var out []*Record
	opts := docstore.FindOptions{Sort: docstore.NewestFirst("createdAt")}
	if err := r.coll.Find(ctx, f, opts, &out); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return out, nil
}

func (r *docRepo) ListByPreferredDate(ctx context.Context, date string) ([]*Record, error) {
	var out []*Record
	f := docstore.Filter{docstore.Eq("preferredDate", date)}
	if err := r.coll.Find(ctx, f, docstore.FindOptions{}, &out); err != nil {
		return nil, fmt.Errorf("list records for %s: %w", date, err)
	}
	return out, nil
}

func (r *docRepo) HasBilledVisit(ctx context.Context, name, phone, email string) (bool, error) {
	for _, contact := range []docstore.Cond{
		docstore.Eq("phoneNo", phone),
		docstore.Eq("email", email),
	} {
		if contact.Value == "" {
			continue
		}
		f := docstore.Filter{docstore.Eq("ptName", name), contact, docstore.Gt("totalAmount", 0)}
		n, err := r.coll.Count(ctx, f)
		if err != nil {
			return false, fmt.Errorf("match previous visits: %w", err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}
