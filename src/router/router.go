package router

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"market-stream/src/helpers"
	"market-stream/src/interfaces"
	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/go-playground/validator/v10"
)

// pricePayload keeps the price pointer so an absent field is rejected
type pricePayload struct {
	Price         *float64 `json:"price" validate:"required,gte=0"`
	ChangePercent float64  `json:"changePercent"`
	Volume        float64  `json:"volume" validate:"gte=0"`
	Timestamp     int64    `json:"timestamp"`
}

// Stats counts routed and dropped push messages.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
}

// -----------------------------------------------------------------------------
// Router decodes push payloads and applies them to the store.
// -----------------------------------------------------------------------------

type Router struct {
	Store  interfaces.IStoreWriter
	Logger *logger.Logger

	validate *validator.Validate
	errs     *helpers.ErrorHandler

	sinksMu sync.RWMutex
	sinks   []interfaces.IDataSink

	dispatched atomic.Int64
	dropped    atomic.Int64
}

// -----------------------------------------------------------------------------

func NewRouter(store interfaces.IStoreWriter, log *logger.Logger) *Router {
	return &Router{
		Store:    store,
		Logger:   log,
		validate: validator.New(),
		errs:     helpers.NewErrorHandler(log),
	}
}

// -----------------------------------------------------------------------------

// AddSink registers s to receive every record applied to the store
func (r *Router) AddSink(s interfaces.IDataSink) {
	r.sinksMu.Lock()
	defer r.sinksMu.Unlock()
	r.sinks = append(r.sinks, s)
	r.Logger.Info("Registered sink %s", s.Name())
}

// -----------------------------------------------------------------------------

// HandleMessage is the data observer; rejected messages are logged and dropped
func (r *Router) HandleMessage(msg models.MInboundMessage) {
	if err := r.Dispatch(msg); err != nil {
		r.Logger.Debug("Dropped %s message: %v", msg.Type, err)
	}
}

// -----------------------------------------------------------------------------

// Dispatch routes msg by data type. A rejected message leaves the store untouched.
func (r *Router) Dispatch(msg models.MInboundMessage) error {
	if msg.Symbol == "" {
		return r.drop(helpers.NewMalformedMessageError("missing symbol", nil))
	}
	if len(msg.Data) == 0 || string(msg.Data) == "null" {
		return r.drop(helpers.NewMalformedMessageError(fmt.Sprintf("missing data for %s", msg.Symbol), nil))
	}

	var err error
	switch msg.DataType {
	case models.DataTypePrice:
		err = r.routePrice(msg)
	case models.DataTypeTrades:
		err = r.routeTrades(msg)
	case models.DataTypeOrderBook:
		err = r.routeOrderBook(msg)
	default:
		err = helpers.NewMalformedMessageError(fmt.Sprintf("unroutable data type %q", msg.DataType), nil)
	}

	if err != nil {
		return r.drop(err)
	}

	r.dispatched.Add(1)
	return nil
}

// -----------------------------------------------------------------------------

// Stats returns the routing counters
func (r *Router) Stats() Stats {
	return Stats{
		Dispatched: r.dispatched.Load(),
		Dropped:    r.dropped.Load(),
	}
}

// -----------------------------------------------------------------------------
// Per data type
// -----------------------------------------------------------------------------

func (r *Router) routePrice(msg models.MInboundMessage) error {
	var p pricePayload
	if err := r.decode(msg, &p); err != nil {
		return err
	}

	price := models.MRealTimePrice{
		Symbol:        msg.Symbol,
		Price:         *p.Price,
		ChangePercent: p.ChangePercent,
		Volume:        p.Volume,
		Timestamp:     p.Timestamp,
	}
	r.Store.UpdatePrice(msg.Symbol, price)

	for _, s := range r.sinkList() {
		r.forward(s, func() { s.OnPrice(price) })
	}
	return nil
}

// -----------------------------------------------------------------------------

func (r *Router) routeTrades(msg models.MInboundMessage) error {
	var p models.MTradesPayload
	if err := r.decode(msg, &p); err != nil {
		return err
	}

	for i := range p.Trades {
		p.Trades[i].Symbol = msg.Symbol
		r.Store.AddTrade(msg.Symbol, p.Trades[i])
	}

	for _, s := range r.sinkList() {
		r.forward(s, func() { s.OnTrades(msg.Symbol, p.Trades) })
	}
	return nil
}

// -----------------------------------------------------------------------------

func (r *Router) routeOrderBook(msg models.MInboundMessage) error {
	var book models.MOrderBook
	if err := r.decode(msg, &book); err != nil {
		return err
	}

	book.Symbol = msg.Symbol
	r.Store.UpdateOrderBook(msg.Symbol, book)

	for _, s := range r.sinkList() {
		r.forward(s, func() { s.OnOrderBook(book) })
	}
	return nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (r *Router) decode(msg models.MInboundMessage, out interface{}) error {
	if err := json.Unmarshal(msg.Data, out); err != nil {
		return helpers.NewMalformedMessageError(fmt.Sprintf("bad %s payload for %s", msg.DataType, msg.Symbol), err)
	}
	if err := r.validate.Struct(out); err != nil {
		return helpers.NewValidationError(fmt.Sprintf("invalid %s payload for %s", msg.DataType, msg.Symbol), err)
	}
	return nil
}

func (r *Router) drop(err error) error {
	r.dropped.Add(1)
	return err
}

func (r *Router) sinkList() []interfaces.IDataSink {
	r.sinksMu.RLock()
	defer r.sinksMu.RUnlock()
	return append([]interfaces.IDataSink(nil), r.sinks...)
}

func (r *Router) forward(s interfaces.IDataSink, fn func()) {
	defer r.errs.Recover("sink " + s.Name())
	fn()
}
