package catalog

import (
	"context"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id string) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, id string) error
	// List returns entries newest first, only active ones when activeOnly.
	List(ctx context.Context, activeOnly bool) ([]*Entry, error)
}

type docRepo struct {
	coll docstore.Collection
}

func NewDocRepo(store docstore.Store) Repository {
	return &docRepo{coll: store.Collection(docstore.Services)}
}

func (r *docRepo) Create(ctx context.Context, e *Entry) error {
	if err := r.coll.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (r *docRepo) GetByID(ctx context.Context, id string) (*Entry, error) {
	var e Entry
	if err := r.coll.FindOne(ctx, docstore.Filter{docstore.Eq("_id", id)}, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *docRepo) Update(ctx context.Context, e *Entry) error {
	return r.coll.Replace(ctx, e)
}

func (r *docRepo) Delete(ctx context.Context, id string) error {
	return r.coll.Delete(ctx, id)
}

func (r *docRepo) List(ctx context.Context, activeOnly bool) ([]*Entry, error) {
	var f docstore.Filter
	if activeOnly {
		f = docstore.Filter{docstore.Eq("isActive", true)}
	}
	var out []*Entry
	if err := r.coll.Find(ctx, f, docstore.FindOptions{Sort: docstore.NewestFirst("createdAt")}, &out); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}
