package exchange

import "context"

// Side is the side of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType is the broker order type.
type OrderType string

const (
	Limit  OrderType = "LIMIT"
	Stop   OrderType = "STOP"
	Market OrderType = "MARKET"
)

// OpenOrder is the broker's view of a resting order.
type OpenOrder struct {
	OrderID    string  `json:"orderId"`
	Price      float64 `json:"price"`
	ReduceOnly bool    `json:"reduceOnly"`
	Quantity   int     `json:"quantity"`
}

// OrderBook maps a tick-rounded price to the open order resting there.
type OrderBook map[float64]OpenOrder

// SubmitRequest describes a new order.
type SubmitRequest struct {
	Symbol        string
	Side          Side
	Qty           int
	Type          OrderType
	Price         float64 // ignored for MARKET
	TimeInForce   string  // defaults to GTC
	ReduceOnly    bool
	ClientOrderID string
}

// PositionRow is one row of the account's position report.
type PositionRow struct {
	Symbol string `json:"symbol"`
	Qty    int    `json:"qty"`
}

// Orders is the order-management surface the engine needs.
type Orders interface {
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	Modify(ctx context.Context, orderID string, price float64) error
	Cancel(ctx context.Context, orderID string) error
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)
}

// Positions reports net signed quantities for the account.
type Positions interface {
	Positions(ctx context.Context) ([]PositionRow, error)
}

// Index keys orders by tick-rounded price. When two orders share a price the
// later one wins, matching the broker listing order.
func Index(ins Instrument, orders []OpenOrder) OrderBook {
	book := make(OrderBook, len(orders))
	for _, o := range orders {
		book[ins.RoundToTick(o.Price)] = o
	}
	return book
}
