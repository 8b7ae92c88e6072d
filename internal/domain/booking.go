package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	StatusPending    BookingStatus = "pending"
	StatusConfirmed  BookingStatus = "confirmed"
	StatusInProgress BookingStatus = "in_progress"
	StatusCompleted  BookingStatus = "completed"
	StatusCancelled  BookingStatus = "cancelled"
	StatusRejected   BookingStatus = "rejected"
)

// ActiveStatuses are the statuses that hold a provider's time.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusInProgress}

func (s BookingStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

func (s BookingStatus) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

type ActorRole string

const (
	ActorCustomer ActorRole = "customer"
	ActorProvider ActorRole = "provider"
	ActorAdmin    ActorRole = "admin"
	ActorSystem   ActorRole = "system"
)

func (r ActorRole) Valid() bool {
	switch r {
	case ActorCustomer, ActorProvider, ActorAdmin, ActorSystem:
		return true
	}
	return false
}

type ActorRef struct {
	Role ActorRole `json:"role"`
	ID   string    `json:"id,omitempty"`
}

type StatusEntry struct {
	Status    BookingStatus `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Actor     ActorRole     `json:"actor"`
	Note      string        `json:"note,omitempty"`
}

type AddOnLine struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Pricing struct {
	BasePrice   decimal.Decimal `json:"basePrice"`
	AddOns      []AddOnLine     `json:"addOns"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxRate     decimal.Decimal `json:"taxRate"`
	Tax         decimal.Decimal `json:"tax"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Currency    string          `json:"currency"`
}

// RefundTier applies to customer cancellations made after AllowedUntil while
// at least MinNotice remains before the appointment.
type RefundTier struct {
	MinNotice        time.Duration   `json:"minNotice"`
	RefundPercentage int             `json:"refundPercentage"`
	Fee              decimal.Decimal `json:"fee"`
}

type CancellationPolicy struct {
	AllowedUntil     time.Time       `json:"allowedUntil"`
	RefundPercentage int             `json:"refundPercentage"`
	CancellationFee  decimal.Decimal `json:"cancellationFee"`
	LateTiers        []RefundTier    `json:"lateTiers,omitempty"`
}

type RefundStatus string

const (
	RefundNone    RefundStatus = "none"
	RefundPending RefundStatus = "pending"
)

type CancellationDetails struct {
	CancelledBy  ActorRole       `json:"cancelledBy"`
	CancelledAt  time.Time       `json:"cancelledAt"`
	Reason       string          `json:"reason,omitempty"`
	RefundAmount decimal.Decimal `json:"refundAmount"`
	RefundStatus RefundStatus    `json:"refundStatus"`
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID                  uuid.UUID            `bun:"id,pk,type:uuid" json:"id"`
	BookingNumber       string               `bun:"booking_number,notnull,unique" json:"bookingNumber"`
	CustomerID          string               `bun:"customer_id,notnull" json:"customerId"`
	ProviderID          string               `bun:"provider_id,notnull" json:"providerId"`
	ServiceID           string               `bun:"service_id,notnull" json:"serviceId"`
	ScheduledDate       time.Time            `bun:"scheduled_date,type:date,notnull" json:"scheduledDate"`
	ScheduledTime       int                  `bun:"scheduled_time,notnull" json:"scheduledTime"`
	Duration            int                  `bun:"duration,notnull" json:"duration"`
	EstimatedEndTime    int                  `bun:"estimated_end_time,notnull" json:"estimatedEndTime"`
	ActualDuration      *int                 `bun:"actual_duration" json:"actualDuration,omitempty"`
	BufferMinutes       int                  `bun:"buffer_minutes,notnull" json:"bufferMinutes"`
	StartsAt            time.Time            `bun:"starts_at,notnull" json:"startsAt"`
	Status              BookingStatus        `bun:"status,notnull" json:"status"`
	Pricing             Pricing              `bun:"pricing,type:jsonb,notnull" json:"pricing"`
	CancellationPolicy  CancellationPolicy   `bun:"cancellation_policy,type:jsonb,notnull" json:"cancellationPolicy"`
	CancellationDetails *CancellationDetails `bun:"cancellation_details,type:jsonb" json:"cancellationDetails,omitempty"`
	StatusHistory       []StatusEntry        `bun:"status_history,type:jsonb,notnull" json:"statusHistory"`
	SpecialRequests     string               `bun:"special_requests" json:"specialRequests,omitempty"`
	Metadata            map[string]string    `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt           time.Time            `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt           time.Time            `bun:"updated_at,notnull" json:"updatedAt"`
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if b.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			b.ID = id
		}
		if b.CreatedAt.IsZero() {
			b.CreatedAt = now
		}
		if b.UpdatedAt.IsZero() {
			b.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		b.UpdatedAt = now
	}
	return nil
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.ScheduledTime, End: b.ScheduledTime + b.Duration}
}

func (b Booking) IsTerminal() bool {
	return b.Status.IsTerminal()
}

// AppendHistory moves the booking to status and records the change. History
// entries are never rewritten.
func (b *Booking) AppendHistory(status BookingStatus, at time.Time, actor ActorRole, note string) {
	b.Status = status
	b.StatusHistory = append(b.StatusHistory, StatusEntry{
		Status:    status,
		Timestamp: at.UTC(),
		Actor:     actor,
		Note:      note,
	})
}

// Service is the read-only catalogue entry a booking is made against.
type Service struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Duration int            `json:"duration"`
	Price    Money          `json:"price"`
	IsActive bool           `json:"isActive"`
	AddOns   []ServiceAddOn `json:"addOns,omitempty"`
}

type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type ServiceAddOn struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type User struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Role ActorRole `json:"role"`
}
