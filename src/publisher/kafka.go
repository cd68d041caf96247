package publisher

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"market-stream/src/helpers"
	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/segmentio/kafka-go"
)

const publishTimeout = 5 * time.Second

// KafkaWriter is the subset of *kafka.Writer the publisher uses
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// -----------------------------------------------------------------------------
// KafkaTradePublisher forwards routed trades to a topic keyed by symbol.
// -----------------------------------------------------------------------------

type KafkaTradePublisher struct {
	Config *models.MPublisherConfig
	Logger *logger.Logger

	writer    KafkaWriter
	errs      *helpers.ErrorHandler
	queue     chan []models.MTrade
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	published atomic.Int64
	dropped   atomic.Int64
}

// -----------------------------------------------------------------------------

func NewKafkaTradePublisher(cfg *models.MPublisherConfig, log *logger.Logger) *KafkaTradePublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewKafkaTradePublisherWithWriter(w, cfg, log)
}

func NewKafkaTradePublisherWithWriter(w KafkaWriter, cfg *models.MPublisherConfig, log *logger.Logger) *KafkaTradePublisher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1024
	}
	return &KafkaTradePublisher{
		Config: cfg,
		Logger: log,
		writer: w,
		errs:   helpers.NewErrorHandler(log),
		queue:  make(chan []models.MTrade, size),
		done:   make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

func (p *KafkaTradePublisher) Start() {
	p.wg.Add(1)
	go p.run()
	p.Logger.Info("Kafka publisher started (topic %s)", p.Config.Topic)
}

// Stop publishes what is queued and closes the writer
func (p *KafkaTradePublisher) Stop() error {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	return p.writer.Close()
}

// Stats returns published and dropped trade counts
func (p *KafkaTradePublisher) Stats() (published, dropped int64) {
	return p.published.Load(), p.dropped.Load()
}

// -----------------------------------------------------------------------------

func (p *KafkaTradePublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case trades := <-p.queue:
			p.publish(trades)
		case <-p.done:
			for {
				select {
				case trades := <-p.queue:
					p.publish(trades)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaTradePublisher) publish(trades []models.MTrade) {
	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		value, err := json.Marshal(t)
		if err != nil {
			p.errs.Handle(err, "kafka encode trade "+t.TradeID)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(t.Symbol),
			Value: value,
			Time:  time.UnixMilli(t.Timestamp),
		})
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.dropped.Add(int64(len(msgs)))
		p.errs.Handle(err, "kafka publish")
		return
	}
	p.published.Add(int64(len(msgs)))
}

// -----------------------------------------------------------------------------
// Data Sink Implementation
// -----------------------------------------------------------------------------

func (p *KafkaTradePublisher) Name() string { return "kafka" }

func (p *KafkaTradePublisher) OnPrice(models.MRealTimePrice) {}

func (p *KafkaTradePublisher) OnTrades(symbol string, trades []models.MTrade) {
	if len(trades) == 0 {
		return
	}
	batch := append([]models.MTrade(nil), trades...)
	select {
	case p.queue <- batch:
	default:
		p.dropped.Add(int64(len(batch)))
		p.Logger.Warning("Kafka queue full, dropped %d trades for %s", len(batch), symbol)
	}
}

func (p *KafkaTradePublisher) OnOrderBook(models.MOrderBook) {}
