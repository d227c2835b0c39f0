package domain

// OrderBookEntry is the best bid/ask for one symbol on one exchange feed.
// The zero value means "no data yet": a feed that has not delivered its
// first ticker leaves both prices at 0, and no consumer may treat a zero
// price as valid market data.
type OrderBookEntry struct {
	Bid float64 `json:"bid_price"`
	Ask float64 `json:"ask_price"`
}

// SidePrice returns the market price relevant to an order side: the ask
// for a buy, the bid for a sell. A zero return means no data.
func (e OrderBookEntry) SidePrice(side Side) float64 {
	if side == SideBuy {
		return e.Ask
	}
	return e.Bid
}
