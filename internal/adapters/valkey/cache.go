package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

const opTimeout = 2 * time.Second

// Storage implements fiber.Storage on Valkey (Redis-compatible), so that rate
// limit counters are shared between instances. Keys are namespaced by prefix.
type Storage struct {
	client valkey.Client
	prefix string
}

// New creates a new Valkey-backed storage.
func New(addr, prefix string) (*Storage, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Storage{client: client, prefix: prefix}, nil
}

func (s *Storage) key(k string) string {
	return s.prefix + k
}

// ttl rounds exp up to whole seconds; zero means no expiry.
func ttl(exp time.Duration) time.Duration {
	if exp <= 0 {
		return 0
	}
	if r := exp.Truncate(time.Second); r < exp {
		return r + time.Second
	}
	return exp
}

// Get retrieves a value by key. A missing key yields nil, nil.
func (s *Storage) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	b, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores a value, expiring after exp when exp > 0.
func (s *Storage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	set := s.client.B().Set().Key(s.key(key)).Value(valkey.BinaryString(val))
	if d := ttl(exp); d > 0 {
		return s.client.Do(ctx, set.Ex(d).Build()).Error()
	}
	return s.client.Do(ctx, set.Build()).Error()
}

// Delete removes a key.
func (s *Storage) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).Error()
}

// Reset removes every key under the storage prefix.
func (s *Storage) Reset() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*opTimeout)
	defer cancel()

	var cursor uint64
	for {
		entry, err := s.client.Do(ctx,
			s.client.B().Scan().Cursor(cursor).Match(s.prefix+"*").Count(100).Build(),
		).AsScanEntry()
		if err != nil {
			return err
		}
		if len(entry.Elements) > 0 {
			if err := s.client.Do(ctx, s.client.B().Del().Key(entry.Elements...).Build()).Error(); err != nil {
				return err
			}
		}
		if entry.Cursor == 0 {
			return nil
		}
		cursor = entry.Cursor
	}
}

// Ping checks connectivity.
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (s *Storage) Close() error {
	s.client.Close()
	return nil
}
