package grpc

import (
	"time"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/lifecycle"
	"homeserve/backend/internal/service/bookings"
)

type CreateBookingRequest struct {
	CustomerID      string            `json:"customerId"`
	ProviderID      string            `json:"providerId"`
	ServiceID       string            `json:"serviceId"`
	ScheduledDate   string            `json:"scheduledDate"`
	ScheduledTime   string            `json:"scheduledTime"`
	AddOnIDs        []string          `json:"addOnIds,omitempty"`
	SpecialRequests string            `json:"specialRequests,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type TransitionRequest struct {
	BookingNumber  string `json:"bookingNumber"`
	Note           string `json:"note,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ActualDuration *int   `json:"actualDuration,omitempty"`
}

type BookingResponse struct {
	Booking Booking `json:"booking"`
}

// Booking is the participant view of a booking: the customer, the provider
// and admins see it in full.
type Booking struct {
	ID                  string                      `json:"id"`
	BookingNumber       string                      `json:"bookingNumber"`
	CustomerID          string                      `json:"customerId"`
	ProviderID          string                      `json:"providerId"`
	ServiceID           string                      `json:"serviceId"`
	ScheduledDate       string                      `json:"scheduledDate"`
	ScheduledTime       string                      `json:"scheduledTime"`
	EstimatedEndTime    string                      `json:"estimatedEndTime"`
	Duration            int                         `json:"duration"`
	ActualDuration      *int                        `json:"actualDuration,omitempty"`
	Status              domain.BookingStatus        `json:"status"`
	AllowedActions      []lifecycle.Action          `json:"allowedActions"`
	Pricing             domain.Pricing              `json:"pricing"`
	CancellationPolicy  domain.CancellationPolicy   `json:"cancellationPolicy"`
	CancellationDetails *domain.CancellationDetails `json:"cancellationDetails,omitempty"`
	StatusHistory       []domain.StatusEntry        `json:"statusHistory"`
	SpecialRequests     string                      `json:"specialRequests,omitempty"`
	Metadata            map[string]string           `json:"metadata,omitempty"`
	CreatedAt           time.Time                   `json:"createdAt"`
	UpdatedAt           time.Time                   `json:"updatedAt"`
}

type TrackBookingRequest struct {
	BookingNumber string `json:"bookingNumber"`
}

type TrackBookingResponse struct {
	Tracking bookings.TrackingView `json:"tracking"`
}

type GetOpenSlotsRequest struct {
	ProviderID string `json:"providerId"`
	Date       string `json:"date"`
	ServiceID  string `json:"serviceId"`
}

type GetOpenSlotsResponse struct {
	Slots bookings.SlotsView `json:"slots"`
}

type GetAvailabilityRequest struct {
	ProviderID string `json:"providerId"`
}

type SetAvailabilityRequest struct {
	Availability domain.ProviderAvailability `json:"availability"`
}

type AddDateOverrideRequest struct {
	ProviderID  string            `json:"providerId"`
	Date        string            `json:"date"`
	IsAvailable bool              `json:"isAvailable"`
	TimeSlots   []domain.TimeSlot `json:"timeSlots,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

type AddBlockedPeriodRequest struct {
	ProviderID string `json:"providerId"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Reason     string `json:"reason,omitempty"`
}

type AvailabilityResponse struct {
	Availability domain.ProviderAvailability `json:"availability"`
}

func toBooking(b domain.Booking) Booking {
	allowed := lifecycle.Allowed(b.Status)
	if allowed == nil {
		allowed = []lifecycle.Action{}
	}
	return Booking{
		ID:                  b.ID.String(),
		BookingNumber:       b.BookingNumber,
		CustomerID:          b.CustomerID,
		ProviderID:          b.ProviderID,
		ServiceID:           b.ServiceID,
		ScheduledDate:       b.ScheduledDate.Format(domain.DateLayout),
		ScheduledTime:       domain.FormatClock(b.ScheduledTime),
		EstimatedEndTime:    domain.FormatClock(b.EstimatedEndTime),
		Duration:            b.Duration,
		ActualDuration:      b.ActualDuration,
		Status:              b.Status,
		AllowedActions:      allowed,
		Pricing:             b.Pricing,
		CancellationPolicy:  b.CancellationPolicy,
		CancellationDetails: b.CancellationDetails,
		StatusHistory:       b.StatusHistory,
		SpecialRequests:     b.SpecialRequests,
		Metadata:            b.Metadata,
		CreatedAt:           b.CreatedAt,
		UpdatedAt:           b.UpdatedAt,
	}
}
