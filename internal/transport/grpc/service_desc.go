package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "homeserve.v1.BookingService"

type BookingServiceServer interface {
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*BookingResponse, error)
	ConfirmBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error)
	RejectBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error)
	StartBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error)
	CompleteBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error)
	CancelBooking(ctx context.Context, req *TransitionRequest) (*BookingResponse, error)
	TrackBooking(ctx context.Context, req *TrackBookingRequest) (*TrackBookingResponse, error)
	GetOpenSlots(ctx context.Context, req *GetOpenSlotsRequest) (*GetOpenSlotsResponse, error)
	GetAvailability(ctx context.Context, req *GetAvailabilityRequest) (*AvailabilityResponse, error)
	SetAvailability(ctx context.Context, req *SetAvailabilityRequest) (*AvailabilityResponse, error)
	AddDateOverride(ctx context.Context, req *AddDateOverrideRequest) (*AvailabilityResponse, error)
	AddBlockedPeriod(ctx context.Context, req *AddBlockedPeriodRequest) (*AvailabilityResponse, error)
}

// BookingServiceDesc describes the service for grpc.Server.RegisterService.
// Messages travel with the JSON codec registered in this package.
var BookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateBooking", BookingServiceServer.CreateBooking),
		unary("ConfirmBooking", BookingServiceServer.ConfirmBooking),
		unary("RejectBooking", BookingServiceServer.RejectBooking),
		unary("StartBooking", BookingServiceServer.StartBooking),
		unary("CompleteBooking", BookingServiceServer.CompleteBooking),
		unary("CancelBooking", BookingServiceServer.CancelBooking),
		unary("TrackBooking", BookingServiceServer.TrackBooking),
		unary("GetOpenSlots", BookingServiceServer.GetOpenSlots),
		unary("GetAvailability", BookingServiceServer.GetAvailability),
		unary("SetAvailability", BookingServiceServer.SetAvailability),
		unary("AddDateOverride", BookingServiceServer.AddDateOverride),
		unary("AddBlockedPeriod", BookingServiceServer.AddBlockedPeriod),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "homeserve/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&BookingServiceDesc, srv)
}

func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unary[Req, Resp any](method string, call func(BookingServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(BookingServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*Req))
			})
		},
	}
}

// BookingServiceClient is the client side of BookingService.
type BookingServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewBookingServiceClient(cc grpc.ClientConnInterface) *BookingServiceClient {
	return &BookingServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BookingServiceClient) CreateBooking(ctx context.Context, req *CreateBookingRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c.cc, "CreateBooking", req, opts)
}

func (c *BookingServiceClient) ConfirmBooking(ctx context.Context, req *TransitionRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c.cc, "ConfirmBooking", req, opts)
}

func (c *BookingServiceClient) RejectBooking(ctx context.Context, req *TransitionRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c.cc, "RejectBooking", req, opts)
}

func (c *BookingServiceClient) StartBooking(ctx context.Context, req *TransitionRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c.cc, "StartBooking", req, opts)
}

func (c *BookingServiceClient) CompleteBooking(ctx context.Context, req *TransitionRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c.cc, "CompleteBooking", req, opts)
}

func (c *BookingServiceClient) CancelBooking(ctx context.Context, req *TransitionRequest, opts ...grpc.CallOption) (*BookingResponse, error) {
	return invoke[BookingResponse](ctx, c.cc, "CancelBooking", req, opts)
}

func (c *BookingServiceClient) TrackBooking(ctx context.Context, req *TrackBookingRequest, opts ...grpc.CallOption) (*TrackBookingResponse, error) {
	return invoke[TrackBookingResponse](ctx, c.cc, "TrackBooking", req, opts)
}

func (c *BookingServiceClient) GetOpenSlots(ctx context.Context, req *GetOpenSlotsRequest, opts ...grpc.CallOption) (*GetOpenSlotsResponse, error) {
	return invoke[GetOpenSlotsResponse](ctx, c.cc, "GetOpenSlots", req, opts)
}

func (c *BookingServiceClient) GetAvailability(ctx context.Context, req *GetAvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, c.cc, "GetAvailability", req, opts)
}

func (c *BookingServiceClient) SetAvailability(ctx context.Context, req *SetAvailabilityRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, c.cc, "SetAvailability", req, opts)
}

func (c *BookingServiceClient) AddDateOverride(ctx context.Context, req *AddDateOverrideRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, c.cc, "AddDateOverride", req, opts)
}

func (c *BookingServiceClient) AddBlockedPeriod(ctx context.Context, req *AddBlockedPeriodRequest, opts ...grpc.CallOption) (*AvailabilityResponse, error) {
	return invoke[AvailabilityResponse](ctx, c.cc, "AddBlockedPeriod", req, opts)
}
