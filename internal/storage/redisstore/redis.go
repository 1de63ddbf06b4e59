package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"burnbin/internal/storage"
)

// Record layout: one hash per paste at paste:{id} with fields content,
// created_at_ms, expires_at_ms and remaining_views. Absent numerics are
// stored as the empty string and decoded back to nil.

// consumeScript runs the whole read-check-mutate sequence server-side so two
// round-tripping clients can never race between the check and the mutation.
// Expiry is authoritative via the expires_at_ms field, never the key TTL.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
if redis.call("EXISTS", key) == 0 then
  return false
end

local content = redis.call("HGET", key, "content")
local created_at_ms = redis.call("HGET", key, "created_at_ms")
local expires_at_ms_raw = redis.call("HGET", key, "expires_at_ms")
local remaining_views_raw = redis.call("HGET", key, "remaining_views")

local expires_at_ms = nil
if expires_at_ms_raw and expires_at_ms_raw ~= "" then
  expires_at_ms = tonumber(expires_at_ms_raw)
end

if expires_at_ms and now >= expires_at_ms then
  redis.call("DEL", key)
  return false
end

local remaining_views = nil
if remaining_views_raw and remaining_views_raw ~= "" then
  remaining_views = tonumber(remaining_views_raw)
end

if remaining_views ~= nil then
  if remaining_views <= 0 then
    redis.call("DEL", key)
    return false
  end
  local next_views = remaining_views - 1
  if next_views < 0 then
    next_views = 0
  end
  redis.call("HSET", key, "remaining_views", tostring(next_views))
  remaining_views = next_views
end

local remaining_out = ""
if remaining_views ~= nil then
  remaining_out = tostring(remaining_views)
end
return { content, created_at_ms, expires_at_ms_raw or "", remaining_out }
`)

// Store implements storage.Store backed by a shared Redis instance.
type Store struct {
	client *redis.Client
}

// Open connects to Redis at addr. The address is parsed as a redis:// URL
// first and falls back to plain host:port. The connection is verified with a
// ping before the store is handed out.
func Open(ctx context.Context, addr string) (*Store, error) {
	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, storage.Unavailable("connect to redis", err)
	}
	return &Store{client: client}, nil
}

func key(id string) string {
	return "paste:" + id
}

// Create persists a paste record as a hash. When the record has an expiry, a
// key TTL is attached as a storage-reclamation hint; consume never relies on
// it.
func (s *Store) Create(ctx context.Context, rec *storage.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}

	fields := map[string]any{
		"content":         rec.Content,
		"created_at_ms":   strconv.FormatInt(rec.CreatedAtMS, 10),
		"expires_at_ms":   encodeOptional(rec.ExpiresAtMS),
		"remaining_views": encodeOptional(rec.RemainingViews),
	}
	if err := s.client.HSet(ctx, key(rec.ID), fields).Err(); err != nil {
		return storage.Unavailable("create", err)
	}

	if rec.ExpiresAtMS != nil {
		ttlMS := *rec.ExpiresAtMS - rec.CreatedAtMS
		ttl := time.Duration(ttlMS) * time.Millisecond
		if ttl < time.Second {
			ttl = time.Second
		}
		if err := s.client.Expire(ctx, key(rec.ID), ttl).Err(); err != nil {
			return storage.Unavailable("set expiry hint", err)
		}
	}
	return nil
}

// ConsumeByID atomically fetches a paste and applies its expiry policy via a
// single server-side script evaluation.
func (s *Store) ConsumeByID(ctx context.Context, id string, nowMS int64) (*storage.Record, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{key(id)}, strconv.FormatInt(nowMS, 10)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, storage.Unavailable("consume", err)
	}

	parts, ok := res.([]any)
	if !ok || len(parts) != 4 {
		return nil, storage.ErrNotFound
	}

	content, ok := parts[0].(string)
	if !ok {
		return nil, storage.ErrNotFound
	}
	createdAt, err := strconv.ParseInt(asString(parts[1]), 10, 64)
	if err != nil {
		return nil, storage.ErrNotFound
	}
	expiresAt, err := decodeOptional(asString(parts[2]))
	if err != nil {
		return nil, storage.ErrNotFound
	}
	remaining, err := decodeOptional(asString(parts[3]))
	if err != nil || (remaining != nil && *remaining < 0) {
		return nil, storage.ErrNotFound
	}

	return &storage.Record{
		ID:             id,
		Content:        content,
		CreatedAtMS:    createdAt,
		ExpiresAtMS:    expiresAt,
		RemainingViews: remaining,
	}, nil
}

// HealthCheck pings the server.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return storage.Unavailable("ping", err)
	}
	return nil
}

// DeleteExpired is a no-op: reclamation of expired keys is delegated to the
// TTL hint attached at create time, and consume deletes dead records eagerly.
// A sweep here would mean scanning the whole keyspace for hygiene the engine
// already provides.
func (s *Store) DeleteExpired(ctx context.Context, nowMS int64) (int, error) {
	return 0, nil
}

// Close releases the client connection pool.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func encodeOptional(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func decodeOptional(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed numeric field %q: %w", raw, err)
	}
	return &n, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
