package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Client is the connection shared by the attribution sink and health checks.
type Client struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// ConnectionConfig tunes the attribution connection. Zero values keep the
// go-redis defaults.
type ConnectionConfig struct {
	URL            string
	MaxRetries     int
	DialTimeout    time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PoolSize       int
	ConnectTimeout time.Duration
}

// NewClient connects to config.URL and verifies the connection.
func NewClient(ctx context.Context, config ConnectionConfig, logger *logrus.Logger) (*Client, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.MaxRetries != 0 {
		opt.MaxRetries = config.MaxRetries
	}
	if config.DialTimeout > 0 {
		opt.DialTimeout = config.DialTimeout
	}
	if config.ReadTimeout > 0 {
		opt.ReadTimeout = config.ReadTimeout
	}
	if config.WriteTimeout > 0 {
		opt.WriteTimeout = config.WriteTimeout
	}
	if config.PoolSize > 0 {
		opt.PoolSize = config.PoolSize
	}

	client := &Client{
		rdb:    redis.NewClient(opt),
		logger: logger,
	}

	connectTimeout := config.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx); err != nil {
		client.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.WithField("addr", opt.Addr).Info("Successfully connected to Redis")
	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) GetRedisClient() *redis.Client {
	return c.rdb
}

// DefaultConnectionConfig keeps attribution writes short: the sink runs off
// the playback timeline and drops rather than waits.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxRetries:     2,
		DialTimeout:    2 * time.Second,
		ReadTimeout:    time.Second,
		WriteTimeout:   time.Second,
		PoolSize:       4,
		ConnectTimeout: 5 * time.Second,
	}
}
