package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

func testOrder() *domain.Order {
	return &domain.Order{ID: "ord-1", AmountMinor: 1000, Currency: "RUB"}
}

func TestSimulatedGatewayCaptureOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		roll    float64
		wantErr error
	}{
		{name: "transient error band", roll: 0.05, wantErr: domain.ErrPaymentTemporary},
		{name: "decline band", roll: 0.15, wantErr: domain.ErrPaymentDeclined},
		{name: "success band", roll: 0.50, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := NewSimulatedGateway(0.2, 0.1).WithRandSource(func() float64 { return tt.roll })
			err := gateway.Capture(context.Background(), testOrder())
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSimulatedGatewayRespectsContext(t *testing.T) {
	gateway := NewSimulatedGateway(0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := gateway.Capture(ctx, testOrder()); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if gateway.CaptureCalls() != 0 {
		t.Fatal("cancelled capture must not count as a gateway call")
	}
}

func TestSimulatedGatewayCountsCalls(t *testing.T) {
	gateway := NewSimulatedGateway(0, 0).WithRandSource(func() float64 { return 0.9 })

	for i := 0; i < 3; i++ {
		if err := gateway.Capture(context.Background(), testOrder()); err != nil {
			t.Fatalf("capture %d: %v", i, err)
		}
	}
	if calls := gateway.CaptureCalls(); calls != 3 {
		t.Fatalf("capture calls = %d, want 3", calls)
	}
}
