package docstore

import (
	"time"
)

type testDoc struct {
	ID        string    `json:"_id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Phone     string    `json:"phone" bson:"phone"`
	Active    bool      `json:"active" bson:"active"`
	Total     float64   `json:"total" bson:"total"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

func (d *testDoc) DocumentID() string      { return d.ID }
func (d *testDoc) SetDocumentID(id string) { d.ID = id }
