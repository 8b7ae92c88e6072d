package grpc

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/service/bookings"
)

type BookingServer struct {
	svc bookingService
	log *slog.Logger
}

type bookingService interface {
	Create(ctx context.Context, in bookings.CreateInput) (domain.Booking, error)
	Confirm(ctx context.Context, in bookings.TransitionInput) (domain.Booking, error)
	Reject(ctx context.Context, in bookings.TransitionInput) (domain.Booking, error)
	Start(ctx context.Context, in bookings.TransitionInput) (domain.Booking, error)
	Complete(ctx context.Context, in bookings.TransitionInput) (domain.Booking, error)
	Cancel(ctx context.Context, in bookings.TransitionInput) (domain.Booking, error)
	Track(ctx context.Context, bookingNumber string) (bookings.TrackingView, error)
	OpenSlots(ctx context.Context, providerID, date, serviceID string) (bookings.SlotsView, error)
	GetAvailability(ctx context.Context, providerID string) (domain.ProviderAvailability, error)
	SetAvailability(ctx context.Context, actor domain.ActorRef, pa domain.ProviderAvailability) (domain.ProviderAvailability, error)
	AddDateOverride(ctx context.Context, actor domain.ActorRef, providerID string, in bookings.DateOverrideInput) (domain.ProviderAvailability, error)
	AddBlockedPeriod(ctx context.Context, actor domain.ActorRef, providerID string, in bookings.BlockedPeriodInput) (domain.ProviderAvailability, error)
}

func NewBookingServer(svc bookingService, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		svc: svc,
		log: log.With(slog.String("component", "grpc.bookings")),
	}
}

func (s *BookingServer) CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", "CreateBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		log.Warn("missing actor", slog.Any("err", err))
		return nil, err
	}

	customerID := strings.TrimSpace(req.CustomerID)
	switch actor.Role {
	case domain.ActorCustomer:
		if customerID != "" && customerID != actor.ID {
			return nil, status.Error(codes.PermissionDenied, "customers can only book for themselves")
		}
		customerID = actor.ID
	case domain.ActorAdmin:
		if customerID == "" {
			return nil, status.Error(codes.InvalidArgument, "customerId is required")
		}
	default:
		return nil, status.Error(codes.PermissionDenied, "only customers and admins can create bookings")
	}

	b, err := s.svc.Create(ctx, bookings.CreateInput{
		CustomerID:      customerID,
		ProviderID:      req.ProviderID,
		ServiceID:       req.ServiceID,
		ScheduledDate:   req.ScheduledDate,
		ScheduledTime:   req.ScheduledTime,
		AddOnIDs:        req.AddOnIDs,
		SpecialRequests: req.SpecialRequests,
		Metadata:        req.Metadata,
		IdempotencyKey:  idempotencyKey(ctx),
	})
	if err != nil {
		return nil, s.statusFor(log, err,
			slog.String("provider_id", req.ProviderID),
			slog.String("date", req.ScheduledDate),
			slog.String("time", req.ScheduledTime),
		)
	}

	log.Info("booking created",
		slog.String("booking_number", b.BookingNumber),
		slog.String("provider_id", b.ProviderID),
		slog.String("status", string(b.Status)),
	)
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) ConfirmBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error) {
	return s.transition(ctx, "ConfirmBooking", req, s.svc.Confirm)
}

func (s *BookingServer) RejectBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error) {
	return s.transition(ctx, "RejectBooking", req, s.svc.Reject)
}

func (s *BookingServer) StartBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error) {
	return s.transition(ctx, "StartBooking", req, s.svc.Start)
}

func (s *BookingServer) CompleteBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error) {
	return s.transition(ctx, "CompleteBooking", req, s.svc.Complete)
}

func (s *BookingServer) CancelBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error) {
	return s.transition(ctx, "CancelBooking", req, s.svc.Cancel)
}

func (s *BookingServer) transition(
	ctx context.Context,
	rpc string,
	req *TransitionRequest,
	call func(context.Context, bookings.TransitionInput) (domain.Booking, error),
) (*BookingResponse, error) {
	log := s.log.With(slog.String("rpc", rpc))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		log.Warn("missing actor", slog.Any("err", err))
		return nil, err
	}

	b, err := call(ctx, bookings.TransitionInput{
		BookingNumber:  req.BookingNumber,
		Actor:          actor,
		Note:           req.Note,
		Reason:         req.Reason,
		ActualDuration: req.ActualDuration,
	})
	if err != nil {
		return nil, s.statusFor(log, err,
			slog.String("booking_number", req.BookingNumber),
			slog.String("actor", string(actor.Role)),
		)
	}
	return &BookingResponse{Booking: toBooking(b)}, nil
}

func (s *BookingServer) TrackBooking(ctx context.Context, req *TrackBookingRequest) (*TrackBookingResponse, error) {
	log := s.log.With(slog.String("rpc", "TrackBooking"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	view, err := s.svc.Track(ctx, req.BookingNumber)
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("booking_number", req.BookingNumber))
	}
	log.Debug("booking tracked", slog.String("booking_number", view.BookingNumber))
	return &TrackBookingResponse{Tracking: view}, nil
}

func (s *BookingServer) GetOpenSlots(ctx context.Context, req *GetOpenSlotsRequest) (*GetOpenSlotsResponse, error) {
	log := s.log.With(slog.String("rpc", "GetOpenSlots"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	view, err := s.svc.OpenSlots(ctx, req.ProviderID, req.Date, req.ServiceID)
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}
	log.Debug("open slots listed",
		slog.String("provider_id", req.ProviderID),
		slog.String("date", req.Date),
		slog.Int("count", len(view.Starts)),
	)
	return &GetOpenSlotsResponse{Slots: view}, nil
}

func (s *BookingServer) GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "GetAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	pa, err := s.svc.GetAvailability(ctx, req.ProviderID)
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("provider_id", req.ProviderID))
	}
	return &AvailabilityResponse{Availability: pa}, nil
}

func (s *BookingServer) SetAvailability(ctx context.Context, req *SetAvailabilityRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "SetAvailability"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		log.Warn("missing actor", slog.Any("err", err))
		return nil, err
	}
	pa, err := s.svc.SetAvailability(ctx, actor, req.Availability)
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("provider_id", req.Availability.ProviderID))
	}
	log.Info("availability replaced", slog.String("provider_id", pa.ProviderID))
	return &AvailabilityResponse{Availability: pa}, nil
}

func (s *BookingServer) AddDateOverride(ctx context.Context, req *AddDateOverrideRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "AddDateOverride"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		log.Warn("missing actor", slog.Any("err", err))
		return nil, err
	}
	pa, err := s.svc.AddDateOverride(ctx, actor, req.ProviderID, bookings.DateOverrideInput{
		Date:        req.Date,
		IsAvailable: req.IsAvailable,
		TimeSlots:   req.TimeSlots,
		Reason:      req.Reason,
	})
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("provider_id", req.ProviderID), slog.String("date", req.Date))
	}
	log.Info("date override added", slog.String("provider_id", pa.ProviderID), slog.String("date", req.Date))
	return &AvailabilityResponse{Availability: pa}, nil
}

func (s *BookingServer) AddBlockedPeriod(ctx context.Context, req *AddBlockedPeriodRequest) (*AvailabilityResponse, error) {
	log := s.log.With(slog.String("rpc", "AddBlockedPeriod"))

	if req == nil {
		log.Warn("invalid request", slog.String("reason", "nil_request"))
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	actor, err := actorFrom(ctx)
	if err != nil {
		log.Warn("missing actor", slog.Any("err", err))
		return nil, err
	}
	pa, err := s.svc.AddBlockedPeriod(ctx, actor, req.ProviderID, bookings.BlockedPeriodInput{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
		Reason:    req.Reason,
	})
	if err != nil {
		return nil, s.statusFor(log, err, slog.String("provider_id", req.ProviderID))
	}
	log.Info("blocked period added",
		slog.String("provider_id", pa.ProviderID),
		slog.String("start_date", req.StartDate),
		slog.String("end_date", req.EndDate),
	)
	return &AvailabilityResponse{Availability: pa}, nil
}

// actorFrom reads the caller identity set by the gateway in front of this
// service. Authentication happens there.
func actorFrom(ctx context.Context) (domain.ActorRef, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.ActorRef{}, status.Error(codes.Unauthenticated, "actor metadata is required")
	}
	actor := domain.ActorRef{
		Role: domain.ActorRole(strings.ToLower(firstValue(md, "x-actor-role"))),
		ID:   firstValue(md, "x-actor-id"),
	}
	if actor.ID == "" || !actor.Role.Valid() || actor.Role == domain.ActorSystem {
		return domain.ActorRef{}, status.Error(codes.Unauthenticated, "x-actor-id and x-actor-role are required")
	}
	return actor, nil
}

func idempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := firstValue(md, "idempotency-key"); v != "" {
		return v
	}
	return firstValue(md, "x-idempotency-key")
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

// statusFor logs err at a level matching its kind and converts it to a gRPC
// status.
func (s *BookingServer) statusFor(log *slog.Logger, err error, attrs ...any) error {
	st := toStatus(err)
	args := append([]any{slog.Any("err", err), slog.String("code", st.Code().String())}, attrs...)
	switch st.Code() {
	case codes.Internal, codes.Unknown:
		log.Error("request failed", args...)
	case codes.InvalidArgument, codes.PermissionDenied:
		log.Warn("request rejected", args...)
	case codes.Canceled, codes.DeadlineExceeded:
		log.Info("request abandoned", args...)
	default:
		log.Info("request refused", args...)
	}
	return st.Err()
}
