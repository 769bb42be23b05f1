package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// InventoryClient calls the inventory API with the JSON codec.
type InventoryClient struct {
	log  *slog.Logger
	conn *grpc.ClientConn
}

func NewInventoryClient(log *slog.Logger, addr string, opts ...grpc.DialOption) (*InventoryClient, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &InventoryClient{log: log, conn: conn}, nil
}

// CheckAvailability reports whether every item could be served right now. Nothing is reserved.
func (c *InventoryClient) CheckAvailability(ctx context.Context, items map[string]int) (*CheckAvailabilityResponse, error) {
	req := &CheckAvailabilityRequest{Items: make([]Item, 0, len(items))}
	for name, qty := range items {
		req.Items = append(req.Items, Item{Name: name, Quantity: qty})
	}
	resp := new(CheckAvailabilityResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/CheckAvailability", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *InventoryClient) GetStock(ctx context.Context, name string) (*GetStockResponse, error) {
	resp := new(GetStockResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/GetStock", &GetStockRequest{Name: name}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *InventoryClient) Conn() *grpc.ClientConn { return c.conn }

func (c *InventoryClient) Close() error { return c.conn.Close() }
