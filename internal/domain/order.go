package domain

import (
	"fmt"
	"time"

	"twap_go/pkg/quant"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide validates a wire-level side string.
func ParseSide(s string) (Side, error) {
	switch Side(s) {
	case SideBuy, SideSell:
		return Side(s), nil
	default:
		return "", fmt.Errorf("%w: side must be 'buy' or 'sell', got %q", ErrInvalidOrder, s)
	}
}

// Status is the lifecycle state of an order.
type Status string

const (
	// StatusOpen: the schedule has not yet exhausted all steps.
	StatusOpen Status = "open"
	// StatusPartial: all steps consumed, executed quantity short of target.
	StatusPartial Status = "partial"
	// StatusCompleted: all steps consumed, executed quantity reached target.
	StatusCompleted Status = "completed"
)

// Execution is one filled slice of a TWAP schedule.
type Execution struct {
	Step     int     `json:"step"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// Order is a TWAP paper-trading order. It is mutated exclusively by the
// engine task that owns its schedule; readers get copies from the store.
type Order struct {
	TokenID    string  `json:"token_id"`
	Exchange   string  `json:"exchange"`
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	LimitPrice float64 `json:"price"`
	Side       Side    `json:"order_type"`

	Status           Status      `json:"status"`
	ExecutedQuantity float64     `json:"executed_quantity"`
	Executions       []Execution `json:"executions"`

	Steps        int     `json:"steps"`
	QtyPerStep   float64 `json:"qty_per_step"`
	CreatedUnixM int64   `json:"created_at"`
}

// Clone returns a deep copy safe to hand to readers while the schedule
// is still appending executions.
func (o Order) Clone() Order {
	c := o
	c.Executions = make([]Execution, len(o.Executions))
	copy(c.Executions, o.Executions)
	return c
}

// Fillable reports whether a slice fills at the given market price.
// Aggressive-IOC semantics: a buy fills when the ask is at or below the
// limit, a sell when the bid is at or above it.
func Fillable(side Side, marketPrice, limitPrice float64) bool {
	if side == SideBuy {
		return marketPrice <= limitPrice
	}
	return marketPrice >= limitPrice
}

// SubmitRequest carries the parameters of a TWAP submission.
type SubmitRequest struct {
	TokenID       string
	Exchange      string
	Symbol        string
	Quantity      float64
	LimitPrice    float64
	Side          Side
	ExecutionTime time.Duration
	Interval      time.Duration
}

// Validate checks every submission invariant atomically. A request that
// passes is structurally sound; symbol existence and market-data checks
// happen at acceptance time.
func (r SubmitRequest) Validate() error {
	if r.TokenID == "" {
		return fmt.Errorf("%w: token_id is required", ErrInvalidOrder)
	}
	if _, err := ParseSide(string(r.Side)); err != nil {
		return err
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %v", ErrInvalidOrder, r.Quantity)
	}
	if r.LimitPrice < 0 {
		return fmt.Errorf("%w: limit price must be >= 0, got %v", ErrInvalidOrder, r.LimitPrice)
	}
	if r.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidOrder)
	}
	if r.ExecutionTime <= 0 {
		return fmt.Errorf("%w: execution time must be positive", ErrInvalidOrder)
	}
	if r.ExecutionTime < r.Interval {
		return fmt.Errorf("%w: execution time %s is shorter than interval %s",
			ErrInvalidOrder, r.ExecutionTime, r.Interval)
	}
	return nil
}

// NewOrder builds a validated open order from a request. The limit price
// must already be resolved (marketable orders have it filled in from the
// observed market price before this point).
func NewOrder(r SubmitRequest) (Order, error) {
	if err := r.Validate(); err != nil {
		return Order{}, err
	}

	steps := int(r.ExecutionTime / r.Interval)
	return Order{
		TokenID:      r.TokenID,
		Exchange:     r.Exchange,
		Symbol:       r.Symbol,
		Quantity:     r.Quantity,
		LimitPrice:   r.LimitPrice,
		Side:         r.Side,
		Status:       StatusOpen,
		Executions:   []Execution{},
		Steps:        steps,
		QtyPerStep:   quant.SliceQuantity(r.Quantity, steps),
		CreatedUnixM: time.Now().UnixMicro(),
	}, nil
}
