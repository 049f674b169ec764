// Package telemetry reads the live end-effector position from the
// controller's key-value store, either through the backend's key endpoint
// or straight from Redis.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/banshee-data/trajectory.editor/internal/trajectory"
)

// ErrKeyMissing is returned when the position key holds no value.
var ErrKeyMissing = errors.New("position key not set")

// Feed supplies end-effector positions.
type Feed interface {
	Position(ctx context.Context) (trajectory.EndEffectorSample, error)
}

// KeyReader reads a JSON value by key. trajapi.Client implements it.
type KeyReader interface {
	ReadKey(ctx context.Context, key string) (json.RawMessage, error)
}

// KeyFeed reads the position through the backend's generic key endpoint.
type KeyFeed struct {
	Reader KeyReader
	Key    string
}

// NewKeyFeed creates a feed reading key through r.
func NewKeyFeed(r KeyReader, key string) *KeyFeed {
	return &KeyFeed{Reader: r, Key: key}
}

// Position reads and parses the current position.
func (f *KeyFeed) Position(ctx context.Context) (trajectory.EndEffectorSample, error) {
	raw, err := f.Reader.ReadKey(ctx, f.Key)
	if err != nil {
		return trajectory.EndEffectorSample{}, fmt.Errorf("reading %s: %w", f.Key, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return trajectory.EndEffectorSample{}, fmt.Errorf("reading %s: %w", f.Key, ErrKeyMissing)
	}
	return ParseVector(raw)
}

// StringGetter is the subset of a go-redis client RedisFeed needs.
type StringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisFeed reads the position key directly from Redis.
type RedisFeed struct {
	Client StringGetter
	Key    string
}

// NewRedisFeed creates a feed over a go-redis client.
func NewRedisFeed(c StringGetter, key string) *RedisFeed {
	return &RedisFeed{Client: c, Key: key}
}

// Position reads and parses the current position.
func (f *RedisFeed) Position(ctx context.Context) (trajectory.EndEffectorSample, error) {
	val, err := f.Client.Get(ctx, f.Key).Result()
	if errors.Is(err, redis.Nil) {
		return trajectory.EndEffectorSample{}, fmt.Errorf("reading %s: %w", f.Key, ErrKeyMissing)
	}
	if err != nil {
		return trajectory.EndEffectorSample{}, fmt.Errorf("reading %s: %w", f.Key, err)
	}
	return ParseVector([]byte(val))
}

// ParseVector decodes a position stored as a JSON array of at least three
// numbers (or numeric strings), optionally wrapped in a JSON string the way
// Redis text values arrive through the key endpoint.
func ParseVector(raw []byte) (trajectory.EndEffectorSample, error) {
	raw = bytes.TrimSpace(raw)
	var s string
	if len(raw) > 0 && raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return trajectory.EndEffectorSample{}, fmt.Errorf("parsing position: %w", err)
		}
		raw = bytes.TrimSpace([]byte(s))
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return trajectory.EndEffectorSample{}, fmt.Errorf("parsing position %q: %w", truncate(raw), err)
	}
	if len(items) < 3 {
		return trajectory.EndEffectorSample{}, fmt.Errorf("parsing position %q: want 3 components, got %d", truncate(raw), len(items))
	}

	var v [3]float64
	for i := 0; i < 3; i++ {
		f, err := parseComponent(items[i])
		if err != nil {
			return trajectory.EndEffectorSample{}, fmt.Errorf("parsing position component %d: %w", i, err)
		}
		v[i] = f
	}
	return trajectory.EndEffectorSample{X: v[0], Y: v[1], Z: v[2]}, nil
}

func parseComponent(raw json.RawMessage) (float64, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return f, nil
}

func truncate(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
