package domain

import (
	"errors"
	"testing"
	"time"
)

func validRequest() SubmitRequest {
	return SubmitRequest{
		TokenID:       "twap_btc",
		Exchange:      "binance",
		Symbol:        "BTCUSDT",
		Quantity:      10,
		LimitPrice:    50000,
		Side:          SideBuy,
		ExecutionTime: 180 * time.Second,
		Interval:      60 * time.Second,
	}
}

func TestSubmitRequestValidate(t *testing.T) {
	if err := validRequest().Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{"empty token", func(r *SubmitRequest) { r.TokenID = "" }},
		{"bad side", func(r *SubmitRequest) { r.Side = "hold" }},
		{"zero quantity", func(r *SubmitRequest) { r.Quantity = 0 }},
		{"negative quantity", func(r *SubmitRequest) { r.Quantity = -1 }},
		{"negative limit", func(r *SubmitRequest) { r.LimitPrice = -0.01 }},
		{"zero interval", func(r *SubmitRequest) { r.Interval = 0 }},
		{"zero execution time", func(r *SubmitRequest) { r.ExecutionTime = 0 }},
		{"execution shorter than interval", func(r *SubmitRequest) {
			r.ExecutionTime = 30 * time.Second
			r.Interval = 60 * time.Second
		}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := validRequest()
			c.mutate(&r)
			err := r.Validate()
			if !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

func TestNewOrderSteps(t *testing.T) {
	r := validRequest()
	ord, err := NewOrder(r)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}

	if ord.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", ord.Steps)
	}
	if ord.Status != StatusOpen {
		t.Errorf("new order should be open, got %s", ord.Status)
	}
	want := 10.0 / 3.0
	if diff := ord.QtyPerStep - want; diff > 1e-12 || diff < -1e-12 {
		t.Errorf("qty per step = %v, want %v", ord.QtyPerStep, want)
	}

	// Truncating division: a leftover below one interval adds no step.
	r.ExecutionTime = 190 * time.Second
	ord, err = NewOrder(r)
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	if ord.Steps != 3 {
		t.Errorf("expected floor(190/60)=3 steps, got %d", ord.Steps)
	}
}

func TestFillable(t *testing.T) {
	if !Fillable(SideBuy, 99, 100) {
		t.Error("buy should fill when ask below limit")
	}
	if !Fillable(SideBuy, 100, 100) {
		t.Error("buy should fill when ask equals limit")
	}
	if Fillable(SideBuy, 101, 100) {
		t.Error("buy should not fill when ask above limit")
	}
	if !Fillable(SideSell, 101, 100) {
		t.Error("sell should fill when bid above limit")
	}
	if Fillable(SideSell, 99, 100) {
		t.Error("sell should not fill when bid below limit")
	}
}

func TestOrderClone(t *testing.T) {
	ord, err := NewOrder(validRequest())
	if err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	ord.Executions = append(ord.Executions, Execution{Step: 1, Price: 100, Quantity: 3})

	c := ord.Clone()
	c.Executions[0].Price = 999
	if ord.Executions[0].Price != 100 {
		t.Error("mutating a clone must not touch the original executions")
	}
}

func TestSidePrice(t *testing.T) {
	e := OrderBookEntry{Bid: 99, Ask: 101}
	if e.SidePrice(SideBuy) != 101 {
		t.Error("buy side should read the ask")
	}
	if e.SidePrice(SideSell) != 99 {
		t.Error("sell side should read the bid")
	}

	var zero OrderBookEntry
	if zero.SidePrice(SideBuy) != 0 || zero.SidePrice(SideSell) != 0 {
		t.Error("zero entry must report zero prices")
	}
}
