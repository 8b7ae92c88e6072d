package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"homeserve/backend/internal/cancellation"
	"homeserve/backend/internal/domain"
	"homeserve/backend/internal/pricing"
	"homeserve/backend/internal/service/bookings"
	"homeserve/backend/internal/store/memory"
)

func startServer(t *testing.T) *BookingServiceClient {
	t.Helper()

	st := memory.New()
	st.PutUser(domain.User{ID: "prov-1", Name: "Asha Plumbing", Role: domain.ActorProvider})
	st.PutUser(domain.User{ID: "cust-1", Name: "Ravi", Role: domain.ActorCustomer})
	st.PutService(domain.Service{
		ID:       "svc-clean",
		Name:     "Kitchen cleaning",
		Duration: 60,
		Price:    domain.Money{Amount: decimal.NewFromInt(500), Currency: "INR"},
		IsActive: true,
	})
	var week domain.WeeklySchedule
	week[domain.Monday] = domain.DaySchedule{
		IsAvailable: true,
		TimeSlots:   []domain.TimeSlot{{Start: "09:00", End: "17:00", IsActive: true}},
	}
	if _, err := st.SaveAvailability(context.Background(), domain.ProviderAvailability{
		ProviderID:            "prov-1",
		Timezone:              "UTC",
		WeeklySchedule:        week,
		MaxAdvanceBookingDays: 30,
	}); err != nil {
		t.Fatalf("SaveAvailability: %v", err)
	}

	calc, err := pricing.NewCalculator(decimal.RequireFromString("0.18"))
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	svc := bookings.NewService(bookings.Deps{
		Bookings:     st,
		Availability: st,
		Catalog:      st,
		Users:        st,
	}, bookings.Options{
		Pricing:       calc,
		Cancellation:  cancellation.NewEngine(24*time.Hour, nil),
		CommitRetries: 1,
		Now:           func() time.Time { return time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC) },
		Log:           quietLogger(),
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		DefaultTimeout(5*time.Second),
		RateLimit(0, 0, nil),
	))
	RegisterBookingServiceServer(srv, NewBookingServer(svc, quietLogger()))
	healthpb.RegisterHealthServer(srv, health.NewServer())

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health = %s", resp.Status)
	}
	return NewBookingServiceClient(conn)
}

func outgoingActor(role domain.ActorRole, id string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "x-actor-role", string(role), "x-actor-id", id)
}

func TestRoundTrip_BookingLifecycle(t *testing.T) {
	client := startServer(t)
	customer := outgoingActor(domain.ActorCustomer, "cust-1")
	provider := outgoingActor(domain.ActorProvider, "prov-1")

	created, err := client.CreateBooking(metadata.AppendToOutgoingContext(customer, "idempotency-key", "rt-1"), &CreateBookingRequest{
		ProviderID:    "prov-1",
		ServiceID:     "svc-clean",
		ScheduledDate: "2026-03-02",
		ScheduledTime: "10:00",
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	b := created.Booking
	if b.Status != domain.StatusPending || b.CustomerID != "cust-1" || b.EstimatedEndTime != "11:00" {
		t.Fatalf("created = %+v", b)
	}
	if !b.Pricing.TotalAmount.Equal(decimal.RequireFromString("590")) {
		t.Fatalf("total = %s", b.Pricing.TotalAmount)
	}

	_, err = client.CreateBooking(outgoingActor(domain.ActorCustomer, "cust-1"), &CreateBookingRequest{
		ProviderID:    "prov-1",
		ServiceID:     "svc-clean",
		ScheduledDate: "2026-03-02",
		ScheduledTime: "10:30",
	})
	if status.Code(err) != codes.Aborted {
		t.Fatalf("overlapping create code = %s, want %s", status.Code(err), codes.Aborted)
	}
	if info, ok := ErrorInfoFrom(err); !ok || info.Reason != ReasonConflict {
		t.Fatalf("overlap info = %+v", info)
	}

	confirmed, err := client.ConfirmBooking(provider, &TransitionRequest{BookingNumber: b.BookingNumber})
	if err != nil {
		t.Fatalf("ConfirmBooking: %v", err)
	}
	if confirmed.Booking.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s", confirmed.Booking.Status)
	}

	_, err = client.StartBooking(customer, &TransitionRequest{BookingNumber: b.BookingNumber})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("customer start code = %s, want %s", status.Code(err), codes.PermissionDenied)
	}

	tracked, err := client.TrackBooking(context.Background(), &TrackBookingRequest{BookingNumber: b.BookingNumber})
	if err != nil {
		t.Fatalf("TrackBooking: %v", err)
	}
	if tracked.Tracking.Provider.Name != "Asha Plumbing" || tracked.Tracking.Status != domain.StatusConfirmed {
		t.Fatalf("tracking = %+v", tracked.Tracking)
	}

	slots, err := client.GetOpenSlots(context.Background(), &GetOpenSlotsRequest{ProviderID: "prov-1", Date: "2026-03-02", ServiceID: "svc-clean"})
	if err != nil {
		t.Fatalf("GetOpenSlots: %v", err)
	}
	for _, s := range slots.Slots.Starts {
		if s == "10:00" || s == "10:30" {
			t.Fatalf("booked time %s offered in %v", s, slots.Slots.Starts)
		}
	}

	cancelled, err := client.CancelBooking(customer, &TransitionRequest{BookingNumber: b.BookingNumber, Reason: "changed plans"})
	if err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if cancelled.Booking.Status != domain.StatusCancelled || cancelled.Booking.CancellationDetails == nil {
		t.Fatalf("cancelled = %+v", cancelled.Booking)
	}
}

func TestRoundTrip_AvailabilityManagement(t *testing.T) {
	client := startServer(t)

	_, err := client.AddDateOverride(outgoingActor(domain.ActorProvider, "prov-2"), &AddDateOverrideRequest{
		ProviderID: "prov-1",
		Date:       "2026-03-02",
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("foreign provider code = %s, want %s", status.Code(err), codes.PermissionDenied)
	}

	if _, err := client.AddDateOverride(outgoingActor(domain.ActorProvider, "prov-1"), &AddDateOverrideRequest{
		ProviderID: "prov-1",
		Date:       "2026-03-02",
		Reason:     "holiday",
	}); err != nil {
		t.Fatalf("AddDateOverride: %v", err)
	}

	got, err := client.GetAvailability(context.Background(), &GetAvailabilityRequest{ProviderID: "prov-1"})
	if err != nil {
		t.Fatalf("GetAvailability: %v", err)
	}
	if len(got.Availability.DateOverrides) != 1 {
		t.Fatalf("overrides = %+v", got.Availability.DateOverrides)
	}

	_, err = client.CreateBooking(outgoingActor(domain.ActorCustomer, "cust-1"), &CreateBookingRequest{
		ProviderID:    "prov-1",
		ServiceID:     "svc-clean",
		ScheduledDate: "2026-03-02",
		ScheduledTime: "10:00",
	})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("create on day off code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestRoundTrip_RequiresActor(t *testing.T) {
	client := startServer(t)
	_, err := client.CancelBooking(context.Background(), &TransitionRequest{BookingNumber: "BK-20260302-00000000"})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Unauthenticated)
	}
}
