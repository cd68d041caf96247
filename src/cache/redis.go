package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"market-stream/src/helpers"
	"market-stream/src/logger"
	"market-stream/src/models"

	"github.com/redis/go-redis/v9"
)

const (
	priceKeyPrefix     = "stream:price:"
	orderBookKeyPrefix = "stream:orderbook:"
	writeTimeout       = 2 * time.Second
)

// -----------------------------------------------------------------------------
// RedisPriceCache mirrors the latest price and book per symbol into Redis
// so other processes can read them without a stream connection.
// -----------------------------------------------------------------------------

type RedisPriceCache struct {
	Config *models.MCacheConfig
	Client *redis.Client
	Logger *logger.Logger

	errs    *helpers.ErrorHandler
	ttl     time.Duration
	writes  chan cacheWrite
	done    chan struct{}
	wg      sync.WaitGroup
	stopped sync.Once
}

type cacheWrite struct {
	key   string
	value interface{}
}

// -----------------------------------------------------------------------------

func NewRedisPriceCache(cfg *models.MCacheConfig, log *logger.Logger) *RedisPriceCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisPriceCacheWithClient(client, cfg, log)
}

func NewRedisPriceCacheWithClient(client *redis.Client, cfg *models.MCacheConfig, log *logger.Logger) *RedisPriceCache {
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisPriceCache{
		Config: cfg,
		Client: client,
		Logger: log,
		errs:   helpers.NewErrorHandler(log),
		ttl:    ttl,
		writes: make(chan cacheWrite, 1024),
		done:   make(chan struct{}),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Start pings Redis and launches the writer
func (c *RedisPriceCache) Start(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", c.Config.RedisAddr, err)
	}

	c.wg.Add(1)
	go c.run()
	c.Logger.Info("Redis cache started (%s, ttl %v)", c.Config.RedisAddr, c.ttl)
	return nil
}

// Stop drains queued writes and closes the client
func (c *RedisPriceCache) Stop() error {
	c.stopped.Do(func() { close(c.done) })
	c.wg.Wait()
	return c.Client.Close()
}

// -----------------------------------------------------------------------------

func (c *RedisPriceCache) run() {
	defer c.wg.Done()
	for {
		select {
		case w := <-c.writes:
			c.write(w)
		case <-c.done:
			for {
				select {
				case w := <-c.writes:
					c.write(w)
				default:
					return
				}
			}
		}
	}
}

func (c *RedisPriceCache) write(w cacheWrite) {
	data, err := json.Marshal(w.value)
	if err != nil {
		c.errs.Handle(err, "redis encode "+w.key)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	c.errs.Handle(c.Client.Set(ctx, w.key, data, c.ttl).Err(), "redis set "+w.key)
}

func (c *RedisPriceCache) enqueue(key string, value interface{}) {
	select {
	case c.writes <- cacheWrite{key: key, value: value}:
	default:
		c.Logger.Warning("Redis cache queue full, skipped %s", key)
	}
}

// -----------------------------------------------------------------------------
// Data Sink Implementation
// -----------------------------------------------------------------------------

func (c *RedisPriceCache) Name() string { return "redis" }

func (c *RedisPriceCache) OnPrice(price models.MRealTimePrice) {
	c.enqueue(priceKeyPrefix+price.Symbol, price)
}

// OnTrades is a no-op; trade tapes are not mirrored
func (c *RedisPriceCache) OnTrades(string, []models.MTrade) {}

func (c *RedisPriceCache) OnOrderBook(book models.MOrderBook) {
	c.enqueue(orderBookKeyPrefix+book.Symbol, book)
}

// -----------------------------------------------------------------------------
// Readers
// -----------------------------------------------------------------------------

// GetPrice returns the cached price, or nil when absent or expired
func (c *RedisPriceCache) GetPrice(ctx context.Context, symbol string) (*models.MRealTimePrice, error) {
	var price models.MRealTimePrice
	ok, err := c.get(ctx, priceKeyPrefix+symbol, &price)
	if !ok {
		return nil, err
	}
	return &price, nil
}

// GetOrderBook returns the cached book, or nil when absent or expired
func (c *RedisPriceCache) GetOrderBook(ctx context.Context, symbol string) (*models.MOrderBook, error) {
	var book models.MOrderBook
	ok, err := c.get(ctx, orderBookKeyPrefix+symbol, &book)
	if !ok {
		return nil, err
	}
	return &book, nil
}

func (c *RedisPriceCache) get(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read %s from cache: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
