package grpc

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/store"
)

const errorDomain = "homeserve.v1"

// Reasons carried in ErrorInfo so clients can branch without parsing
// messages.
const (
	ReasonValidation          = "VALIDATION"
	ReasonAvailability        = "PROVIDER_UNAVAILABLE"
	ReasonConflict            = "SLOT_CONFLICT"
	ReasonConcurrencyConflict = "CONCURRENT_RESERVATION"
	ReasonAuthorization       = "NOT_AUTHORIZED"
	ReasonStateTransition     = "INVALID_TRANSITION"
	ReasonIdempotencyConflict = "IDEMPOTENCY_KEY_REUSED"
	ReasonNotFound            = "NOT_FOUND"
	ReasonProviderNotFound    = "PROVIDER_NOT_FOUND"
	ReasonServiceUnavailable  = "SERVICE_UNAVAILABLE"
)

// toStatus maps service errors onto gRPC codes. Anything unrecognised is an
// internal error and its message is not exposed.
func toStatus(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}

	var (
		vErr  *domain.ValidationError
		aErr  *domain.AvailabilityError
		cErr  *domain.ConflictError
		ccErr *domain.ConcurrencyConflictError
		auErr *domain.AuthorizationError
		sErr  *domain.StateTransitionError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, "request timed out")
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, "request canceled")
	case errors.As(err, &vErr):
		md := map[string]string{}
		if vErr.Field != "" {
			md["field"] = vErr.Field
		}
		return withInfo(codes.InvalidArgument, vErr.Error(), ReasonValidation, md)
	case errors.As(err, &aErr):
		md := map[string]string{
			"providerId": aErr.ProviderID,
			"date":       aErr.Date.Format(domain.DateLayout),
			"reason":     aErr.Reason,
		}
		if s := suggestions(aErr.Suggestions); s != "" {
			md["suggestions"] = s
		}
		return withInfo(codes.FailedPrecondition, aErr.Error(), ReasonAvailability, md)
	case errors.As(err, &cErr):
		md := map[string]string{"providerId": cErr.ProviderID}
		if cErr.ConflictingBooking != "" {
			md["conflictingBooking"] = cErr.ConflictingBooking
		}
		if s := suggestions(cErr.Suggestions); s != "" {
			md["suggestions"] = s
		}
		return withInfo(codes.Aborted, "That slot is no longer available. Pick a different time.", ReasonConflict, md)
	case errors.As(err, &ccErr):
		return withInfo(codes.Aborted, "Another booking was made at the same time. Try again.", ReasonConcurrencyConflict, map[string]string{
			"providerId": ccErr.ProviderID,
			"date":       ccErr.Date.Format(domain.DateLayout),
		})
	case errors.As(err, &auErr):
		return withInfo(codes.PermissionDenied, auErr.Error(), ReasonAuthorization, map[string]string{
			"action": auErr.Action,
			"role":   string(auErr.Actor.Role),
		})
	case errors.As(err, &sErr):
		return withInfo(codes.FailedPrecondition, sErr.Error(), ReasonStateTransition, map[string]string{
			"bookingNumber": sErr.BookingNumber,
			"status":        string(sErr.From),
			"action":        sErr.Action,
		})
	case errors.Is(err, store.ErrIdempotencyConflict):
		return withInfo(codes.FailedPrecondition, "This request key was already used for a different booking. Try again.", ReasonIdempotencyConflict, nil)
	case errors.Is(err, domain.ErrProviderNotFound):
		return withInfo(codes.NotFound, "provider not found", ReasonProviderNotFound, nil)
	case errors.Is(err, store.ErrNotFound):
		return withInfo(codes.NotFound, notFoundMessage(err), ReasonNotFound, nil)
	case errors.Is(err, domain.ErrServiceUnavailable):
		return withInfo(codes.FailedPrecondition, "service is not bookable", ReasonServiceUnavailable, nil)
	default:
		return status.New(codes.Internal, "internal error")
	}
}

func withInfo(code codes.Code, msg, reason string, md map[string]string) *status.Status {
	st := status.New(code, msg)
	detailed, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   reason,
		Domain:   errorDomain,
		Metadata: md,
	})
	if err != nil {
		return st
	}
	return detailed
}

// ErrorInfoFrom returns the ErrorInfo detail attached to err, if any.
func ErrorInfoFrom(err error) (*errdetails.ErrorInfo, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return nil, false
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info, true
		}
	}
	return nil, false
}

func suggestions(mins []int) string {
	if len(mins) == 0 {
		return ""
	}
	parts := make([]string, len(mins))
	for i, m := range mins {
		parts[i] = domain.FormatClock(m)
	}
	return strings.Join(parts, ",")
}

// notFoundMessage keeps the "<kind> <id>" prefix the service wraps
// ErrNotFound with.
func notFoundMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "+store.ErrNotFound.Error()); i > 0 {
		return msg[:i] + " not found"
	}
	return "not found"
}
