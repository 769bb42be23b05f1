package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "foodshare.inventory.v1.Inventory"

type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Shortfall struct {
	Item      string `json:"item"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

type CheckAvailabilityRequest struct {
	Items []Item `json:"items"`
}

type CheckAvailabilityResponse struct {
	Available  bool        `json:"available"`
	Shortfalls []Shortfall `json:"shortfalls,omitempty"`
}

type GetStockRequest struct {
	Name string `json:"name"`
}

type GetStockResponse struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Quantity int    `json:"quantity"`
	Level    string `json:"level"`
}

// InventoryServer is the read-only stock API. Reservations only happen inside order
// submission, never over the wire.
type InventoryServer interface {
	CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error)
	GetStock(ctx context.Context, req *GetStockRequest) (*GetStockResponse, error)
}

func RegisterInventoryServer(s grpc.ServiceRegistrar, srv InventoryServer) {
	s.RegisterService(&inventoryServiceDesc, srv)
}

var inventoryServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*InventoryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
		{MethodName: "GetStock", Handler: getStockHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "foodshare/inventory/v1/inventory",
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CheckAvailability"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).CheckAvailability(ctx, req.(*CheckAvailabilityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getStockHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetStockRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventoryServer).GetStock(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/GetStock"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventoryServer).GetStock(ctx, req.(*GetStockRequest))
	}
	return interceptor(ctx, in, info, handler)
}
