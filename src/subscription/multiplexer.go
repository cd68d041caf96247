package subscription

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"market-stream/src/helpers"
	"market-stream/src/interfaces"
	"market-stream/src/logger"
	"market-stream/src/models"
)

// DefaultConsumer owns interest registered through the Multiplexer's own methods.
const DefaultConsumer = ""

// -----------------------------------------------------------------------------
// Multiplexer merges the interest of many consumers into one wire subscription set.
// -----------------------------------------------------------------------------

type Multiplexer struct {
	Sender interfaces.ISender
	Logger *logger.Logger

	errs *helpers.ErrorHandler
	now  func() time.Time

	mu       sync.Mutex
	interest map[string]map[string]models.DataTypeSet // symbol -> consumer -> types
	online   bool
}

// -----------------------------------------------------------------------------

func NewMultiplexer(sender interfaces.ISender, log *logger.Logger) *Multiplexer {
	return &Multiplexer{
		Sender:   sender,
		Logger:   log,
		errs:     helpers.NewErrorHandler(log),
		now:      time.Now,
		interest: make(map[string]map[string]models.DataTypeSet),
	}
}

// -----------------------------------------------------------------------------
// Default consumer
// -----------------------------------------------------------------------------

// Subscribe adds dataTypes for every symbol and sends the newly added pairs only
func (m *Multiplexer) Subscribe(symbols []string, dataTypes []models.DataType) {
	m.subscribe(DefaultConsumer, symbols, dataTypes)
}

// Unsubscribe withdraws dataTypes (all when omitted) held by the default consumer
func (m *Multiplexer) Unsubscribe(symbol string, dataTypes ...models.DataType) {
	m.unsubscribe(DefaultConsumer, symbol, dataTypes)
}

// -----------------------------------------------------------------------------

// UnsubscribeAll drops every consumer's interest and sends one unsubscribe_all
func (m *Multiplexer) UnsubscribeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	hadInterest := len(m.interest) > 0
	m.interest = make(map[string]map[string]models.DataTypeSet)

	if hadInterest && m.online {
		m.sendLocked(models.MsgUnsubscribeAll, nil)
	}
}

// -----------------------------------------------------------------------------

// Reset forgets all interest without wire traffic
func (m *Multiplexer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interest = make(map[string]map[string]models.DataTypeSet)
}

// -----------------------------------------------------------------------------

// Consumer returns a handle whose interest is tracked separately under id
func (m *Multiplexer) Consumer(id string) *Consumer {
	return &Consumer{mux: m, id: id}
}

// -----------------------------------------------------------------------------
// Connection events
// -----------------------------------------------------------------------------

// HandleConnection tracks whether the wire is usable and replays the union on connect
func (m *Multiplexer) HandleConnection(event models.ConnectionEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if event.State != models.StateConnected {
		m.online = false
		return
	}

	m.online = true
	channels := m.unionChannelsLocked()
	if len(channels) == 0 {
		return
	}

	m.Logger.Info("Replaying %d subscribed symbol(s)", len(channels))
	m.sendLocked(models.MsgSubscribe, channels)
}

// -----------------------------------------------------------------------------
// Readers
// -----------------------------------------------------------------------------

// Active returns the union of all consumers' interest, types sorted
func (m *Multiplexer) Active() map[string][]models.DataType {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string][]models.DataType, len(m.interest))
	for symbol := range m.interest {
		out[symbol] = m.unionLocked(symbol).Sorted()
	}
	return out
}

// Symbols returns the subscribed symbols in sorted order
func (m *Multiplexer) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedSymbolsLocked()
}

// Wants reports whether any consumer holds dataType for symbol
func (m *Multiplexer) Wants(symbol string, dataType models.DataType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unionLocked(symbol).Has(dataType)
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func (m *Multiplexer) subscribe(consumer string, symbols []string, dataTypes []models.DataType) {
	types := validTypes(dataTypes)
	if len(types) == 0 {
		m.Logger.Warning("Subscribe ignored: no valid data types in %v", dataTypes)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var added []models.MChannel
	for _, symbol := range normalizeSymbols(symbols) {
		before := m.unionLocked(symbol)

		consumers, ok := m.interest[symbol]
		if !ok {
			consumers = make(map[string]models.DataTypeSet)
			m.interest[symbol] = consumers
		}
		set, ok := consumers[consumer]
		if !ok {
			set = models.NewDataTypeSet()
			consumers[consumer] = set
		}
		set.Union(types)

		if diff := types.Difference(before); len(diff) > 0 {
			added = append(added, models.MChannel{Symbol: symbol, DataTypes: diff.Sorted()})
		}
	}

	if len(added) == 0 {
		return
	}

	if !m.online {
		warning := helpers.NewSubscriptionWarning(
			fmt.Sprintf("not connected, %d channel(s) queued until connected", len(added)))
		m.errs.Handle(warning, "subscribe")
		return
	}

	m.sendLocked(models.MsgSubscribe, added)
}

// -----------------------------------------------------------------------------

func (m *Multiplexer) unsubscribe(consumer, symbol string, dataTypes []models.DataType) {
	symbol = strings.TrimSpace(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := m.withdrawLocked(consumer, symbol, dataTypes)
	if len(removed) == 0 {
		return
	}

	channels := []models.MChannel{{Symbol: symbol, DataTypes: removed.Sorted()}}
	if m.online {
		m.sendLocked(models.MsgUnsubscribe, channels)
	}
}

// -----------------------------------------------------------------------------

// release withdraws every interest held by consumer in one request
func (m *Multiplexer) release(consumer string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var channels []models.MChannel
	for _, symbol := range m.sortedSymbolsLocked() {
		if removed := m.withdrawLocked(consumer, symbol, nil); len(removed) > 0 {
			channels = append(channels, models.MChannel{Symbol: symbol, DataTypes: removed.Sorted()})
		}
	}

	if len(channels) > 0 && m.online {
		m.sendLocked(models.MsgUnsubscribe, channels)
	}
}

// -----------------------------------------------------------------------------

// withdrawLocked removes consumer's types and returns the pairs that left the union
func (m *Multiplexer) withdrawLocked(consumer, symbol string, dataTypes []models.DataType) models.DataTypeSet {
	consumers, ok := m.interest[symbol]
	if !ok {
		return nil
	}
	set, ok := consumers[consumer]
	if !ok {
		return nil
	}

	before := m.unionLocked(symbol)

	if len(dataTypes) == 0 {
		delete(consumers, consumer)
	} else {
		for _, t := range dataTypes {
			delete(set, t)
		}
		if len(set) == 0 {
			delete(consumers, consumer)
		}
	}
	if len(consumers) == 0 {
		delete(m.interest, symbol)
	}

	return before.Difference(m.unionLocked(symbol))
}

// -----------------------------------------------------------------------------

func (m *Multiplexer) unionLocked(symbol string) models.DataTypeSet {
	union := models.NewDataTypeSet()
	for _, set := range m.interest[symbol] {
		union.Union(set)
	}
	return union
}

func (m *Multiplexer) unionChannelsLocked() []models.MChannel {
	symbols := m.sortedSymbolsLocked()
	channels := make([]models.MChannel, 0, len(symbols))
	for _, symbol := range symbols {
		channels = append(channels, models.MChannel{Symbol: symbol, DataTypes: m.unionLocked(symbol).Sorted()})
	}
	return channels
}

func (m *Multiplexer) sortedSymbolsLocked() []string {
	symbols := make([]string, 0, len(m.interest))
	for symbol := range m.interest {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// -----------------------------------------------------------------------------

func (m *Multiplexer) sendLocked(msgType string, channels []models.MChannel) {
	req := models.MSubscriptionRequest{
		Type:      msgType,
		Channels:  channels,
		Timestamp: m.now().UTC().Format(time.RFC3339),
	}
	if err := m.Sender.Send(req); err != nil {
		// the next connected event replays the union
		m.errs.Handle(err, msgType)
		return
	}
	m.Logger.Debug("Sent %s for %d channel(s)", msgType, len(channels))
}

// -----------------------------------------------------------------------------

func validTypes(dataTypes []models.DataType) models.DataTypeSet {
	set := models.NewDataTypeSet()
	for _, t := range dataTypes {
		if t.IsValid() {
			set[t] = struct{}{}
		}
	}
	return set
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
