// Package redis provides Redis persistence for the credit ledger.
//
// Clients are stored as hashes so the balance can be debited in place by a
// Lua script. Automations, assignments and executions are JSON strings, and
// each client keeps a sorted set of its execution ids scored by start time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/creditflow/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const defaultPrefix = "creditflow"

// Persistence implements the persistence layer for Redis.
type Persistence struct {
	client         *goredis.Client
	logger         *slog.Logger
	keys           keyspace
	clientRepo     *ClientRepository
	automationRepo *AutomationRepository
	assignmentRepo *AssignmentRepository
	executionRepo  *ExecutionRepository
}

// Option configures the Redis persistence.
type Option func(*Persistence)

// WithPrefix sets a custom key prefix (default "creditflow").
func WithPrefix(prefix string) Option {
	return func(p *Persistence) {
		p.keys = keyspace{prefix: prefix}
	}
}

// NewPersistence connects to the Redis server described by a redis:// URL.
func NewPersistence(ctx context.Context, logger *slog.Logger, redisURL string, opts ...Option) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewPersistenceFromClient(logger, client, opts...), nil
}

// NewPersistenceFromClient wraps an existing go-redis client.
func NewPersistenceFromClient(logger *slog.Logger, client *goredis.Client, opts ...Option) *Persistence {
	p := &Persistence{
		client: client,
		logger: logger,
		keys:   keyspace{prefix: defaultPrefix},
	}

	for _, opt := range opts {
		opt(p)
	}

	p.clientRepo = &ClientRepository{rp: p}
	p.automationRepo = &AutomationRepository{rp: p}
	p.assignmentRepo = &AssignmentRepository{rp: p}
	p.executionRepo = &ExecutionRepository{rp: p}

	return p
}

// Close closes the Redis connection.
func (p *Persistence) Close(_ context.Context) error {
	err := p.client.Close()
	if err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}

	return nil
}

// HealthCheck verifies the Redis connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (p *Persistence) ClientRepository() persistence.ClientRepository {
	return p.clientRepo
}

func (p *Persistence) AutomationRepository() persistence.AutomationRepository {
	return p.automationRepo
}

func (p *Persistence) AssignmentRepository() persistence.AssignmentRepository {
	return p.assignmentRepo
}

func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return p.executionRepo
}

type keyspace struct {
	prefix string
}

func (k keyspace) client(id string) string {
	return k.prefix + ":client:" + id
}

func (k keyspace) clientExecutions(id string) string {
	return k.prefix + ":client:" + id + ":executions"
}

func (k keyspace) automation(id string) string {
	return k.prefix + ":automation:" + id
}

func (k keyspace) assignment(clientID, automationID string) string {
	return k.prefix + ":assignment:" + clientID + ":" + automationID
}

func (k keyspace) execution(id string) string {
	return k.prefix + ":execution:" + id
}

// getJSON loads a JSON document, reporting found=false on a missing key.
func (p *Persistence) getJSON(ctx context.Context, key string, dest any) (bool, error) {
	data, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}

		return false, err
	}

	err = json.Unmarshal(data, dest)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}

	return true, nil
}

func (p *Persistence) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	return p.client.Set(ctx, key, data, 0).Err()
}
