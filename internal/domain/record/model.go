package record

import (
	"time"

	"github.com/clinicdesk/clinicdesk/internal/domain/billing"
)

// Kind tags which lifecycle stage a record is in.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindOrder       Kind = "order"
)

// Appointment statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Delivery statuses for optical/medicine orders.
const (
	DeliveryPending    = "pending"
	DeliveryInProgress = "inProgress"
	DeliveryReady      = "readyToDeliver"
	DeliveryDelivered  = "delivered"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

var validDeliveryStatuses = map[string]bool{
	DeliveryPending: true, DeliveryInProgress: true, DeliveryReady: true, DeliveryDelivered: true,
}

// Statuses lists appointment statuses in display order.
func Statuses() []string {
	return []string{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}
}

// DeliveryStatuses lists delivery statuses in display order.
func DeliveryStatuses() []string {
	return []string{DeliveryPending, DeliveryInProgress, DeliveryReady, DeliveryDelivered}
}

// Contact identifies the patient.
type Contact struct {
	PtName  string `json:"ptName" bson:"ptName"`
	PhoneNo string `json:"phoneNo" bson:"phoneNo"`
	Email   string `json:"email" bson:"email"`
	Age     string `json:"age" bson:"age"`
	Gender  string `json:"gender" bson:"gender"`
	Address string `json:"address" bson:"address"`
}

// Scheduling is the booking part of a record.
type Scheduling struct {
	PreferredDate string `json:"preferredDate" bson:"preferredDate"`
	PreferredTime string `json:"preferredTime" bson:"preferredTime"`
	Service       string `json:"service" bson:"service"`
	Message       string `json:"message" bson:"message"`
	Status        string `json:"status" bson:"status"`
}

// Clinical holds what the doctor recorded during the visit.
type Clinical struct {
	Doctor       string `json:"doctor" bson:"doctor"`
	Complaint    string `json:"complaint" bson:"complaint"`
	Prescription string `json:"prescription" bson:"prescription"`
	Notes        string `json:"notes" bson:"notes"`
}

// Record is one document of the patients collection: an appointment that
// may grow into a billed order. Groups are flattened on the wire.
type Record struct {
	StoreID string `json:"_id,omitempty" bson:"_id,omitempty"`
	ID      string `json:"id" bson:"id"`
	BillNo  string `json:"billNo" bson:"billNo"`
	Kind    Kind   `json:"kind" bson:"kind"`

	Contact        `bson:",inline"`
	Scheduling     `bson:",inline"`
	billing.Inputs `bson:",inline"`
	billing.Totals `bson:",inline"`
	Clinical       `bson:",inline"`

	DeliveryStatus string    `json:"deliveryStatus" bson:"deliveryStatus"`
	Repeated       bool      `json:"repeated" bson:"repeated"`
	CreatedAt      time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (r *Record) DocumentID() string      { return r.StoreID }
func (r *Record) SetDocumentID(id string) { r.StoreID = id }

func (r *Record) BillingInputs() billing.Inputs { return r.Inputs }
func (r *Record) SetTotals(t billing.Totals)    { r.Totals = t }
func (r *Record) Touch(t time.Time)             { r.UpdatedAt = t }
