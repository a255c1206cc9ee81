package eventredis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"safetyeye/internal/logger"
	"safetyeye/pkg/models"
)

// Config configures Redis access for the event sink.
type Config struct {
	Addr     string
	Password string
	DB       int
	Key      string
	MaxRows  int64
}

// Store keeps the event log in a capped Redis list so other processes
// (dashboards, the detector UI) can tail recent events without touching
// the monitor's filesystem.
type Store struct {
	client  *redis.Client
	key     string
	maxRows int64
}

// NewStore constructs a Redis-backed event sink and verifies connectivity.
func NewStore(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.Key) == "" {
		cfg.Key = "safetyeye:events"
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 10000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis event store: %w", err)
	}

	logger.Infof("Redis event sink initialized: %s (%s)", cfg.Addr, cfg.Key)
	return &Store{client: client, key: cfg.Key, maxRows: cfg.MaxRows}, nil
}

// WriteEvents pushes a batch of rows and trims the list to its cap. One
// pipeline round trip per batch.
func (s *Store) WriteEvents(records []*models.EventRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx := context.Background()
	pipe := s.client.Pipeline()
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode event row: %w", err)
		}
		pipe.RPush(ctx, s.key, data)
	}
	pipe.LTrim(ctx, s.key, -s.maxRows, -1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push event rows: %w", err)
	}
	return nil
}

// ReadRecent returns the most recent rows, newest last. Undecodable
// entries are skipped.
func (s *Store) ReadRecent(limit int) ([]*models.EventRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx := context.Background()
	vals, err := s.client.LRange(ctx, s.key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read event rows: %w", err)
	}

	out := make([]*models.EventRecord, 0, len(vals))
	for _, v := range vals {
		rec := &models.EventRecord{}
		if err := json.Unmarshal([]byte(v), rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
