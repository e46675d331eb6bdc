package catalog

import (
	"time"

	"github.com/clinicdesk/clinicdesk/pkg/money"
)

var validCategories = map[string]bool{
	"consultation": true, "diagnostic": true, "optical": true,
	"treatment": true, "surgery": true, "other": true,
}

// Entry is one bookable service offered by the clinic.
type Entry struct {
	StoreID     string       `json:"_id,omitempty" bson:"_id,omitempty"`
	Name        string       `json:"name" bson:"name"`
	Description string       `json:"description" bson:"description"`
	Price       money.Amount `json:"price" bson:"price"`
	Duration    string       `json:"duration" bson:"duration"`
	Category    string       `json:"category" bson:"category"`
	IsActive    *bool        `json:"isActive,omitempty" bson:"isActive,omitempty"`
	MaxDiscount money.Amount `json:"maxDiscount" bson:"maxDiscount"`
	CreatedAt   time.Time    `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt" bson:"updatedAt"`
}

func (e *Entry) DocumentID() string      { return e.StoreID }
func (e *Entry) SetDocumentID(id string) { e.StoreID = id }

// Active reports whether the entry is offered on the public booking page.
func (e *Entry) Active() bool { return e.IsActive == nil || *e.IsActive }
