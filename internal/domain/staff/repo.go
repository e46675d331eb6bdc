package staff

import (
	"context"
	"fmt"

	"github.com/clinicdesk/clinicdesk/internal/platform/docstore"
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Update(ctx context.Context, a *Account) error
	List(ctx context.Context) ([]*Account, error)
}

type docRepo struct {
	coll docstore.Collection
}

func NewDocRepo(store docstore.Store) Repository {
	return &docRepo{coll: store.Collection(docstore.Staff)}
}

func (r *docRepo) Create(ctx context.Context, a *Account) error {
	if err := r.coll.Insert(ctx, a); err != nil {
		return fmt.Errorf("insert staff: %w", err)
	}
	return nil
}

func (r *docRepo) findOne(ctx context.Context, field, value string) (*Account, error) {
	var a Account
	if err := r.coll.FindOne(ctx, docstore.Filter{docstore.Eq(field, value)}, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *docRepo) GetByID(ctx context.Context, id string) (*Account, error) {
	return r.findOne(ctx, "_id", id)
}

func (r *docRepo) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findOne(ctx, "email", email)
}

func (r *docRepo) Update(ctx context.Context, a *Account) error {
	return r.coll.Replace(ctx, a)
}

func (r *docRepo) List(ctx context.Context) ([]*Account, error) {
	var out []*Account
	if err := r.coll.Find(ctx, nil, docstore.FindOptions{Sort: docstore.NewestFirst("createdAt")}, &out); err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return out, nil
}
