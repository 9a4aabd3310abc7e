package backing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"storecache/pkg/dberror"
	"storecache/pkg/objectid"
	"storecache/pkg/logging"
)

// RedisOptions configures a RedisAdapter connection, in the style of
// SharedCode-sop's redis.Options.
type RedisOptions struct {
	// Addr is the Redis server address, e.g. "localhost:6379".
	Addr string
	// Password authenticates against the Redis server, if set.
	Password string
	// DB selects the Redis logical database.
	DB int
}

// DefaultRedisOptions returns the conventional local-development settings.
func DefaultRedisOptions() RedisOptions {
	return RedisOptions{Addr: "localhost:6379"}
}

// RedisAdapter is a Backing Store Adapter backed by Redis, demonstrating
// that the core is polymorphic over its backing store. Objects are stored
// as JSON payloads in a Redis hash (`storecache:{app}:objects`, field =
// object ID); the name directory is a second hash
// (`storecache:{app}:names`, field = name, value = object ID). The app-ID
// namespace lets several storecache instances share one Redis without
// colliding, per the current_app_id capability of spec §9.
//
// Grounded on SharedCode-sop's redis.client and cache/redis.go adapters.
type RedisAdapter struct {
	client *redis.Client
	appID  uuid.UUID

	objectsKey string
	namesKey   string
}

// NewRedisAdapter opens a client against opts and returns a RedisAdapter.
// It does not eagerly ping the server; the first operation surfaces any
// connectivity failure as a BackingFailure. Object ID allocation is the
// store's responsibility (spec §3), not the adapter's, so RedisAdapter has
// no counter of its own.
func NewRedisAdapter(opts RedisOptions) *RedisAdapter {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	appID := uuid.New()
	return &RedisAdapter{
		client:     client,
		appID:      appID,
		objectsKey: fmt.Sprintf("storecache:%s:objects", appID),
		namesKey:   fmt.Sprintf("storecache:%s:names", appID),
	}
}

// Close releases the underlying Redis connection pool.
func (a *RedisAdapter) Close() error {
	return a.client.Close()
}

// NewHandle returns a handle sharing this adapter's Redis connection.
func (a *RedisAdapter) NewHandle() Handle {
	return &redisHandle{adapter: a}
}

type redisHandle struct {
	adapter *RedisAdapter
}

func (h *redisHandle) Create(ctx context.Context, id objectid.ID, value any, name string) error {
	a := h.adapter

	exists, err := a.client.HExists(ctx, a.namesKey, name).Result()
	if err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Create", "RedisAdapter")
	}
	if exists {
		bound, err := a.client.HGet(ctx, a.namesKey, name).Int64()
		if err == nil && objectid.ID(bound) != id {
			return dberror.New(dberror.BackingFailure, "name already bound: "+name)
		}
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Create", "RedisAdapter")
	}

	record := redisRecord{Name: name, Payload: payload}
	encoded, err := json.Marshal(record)
	if err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Create", "RedisAdapter")
	}

	pipe := a.client.TxPipeline()
	pipe.HSet(ctx, a.objectsKey, fmt.Sprint(int64(id)), encoded)
	pipe.HSet(ctx, a.namesKey, name, int64(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Create", "RedisAdapter")
	}

	logging.WithComponent("backing").Debug("object created in redis", "object_id", id.String(), "name", name)
	return nil
}

type redisRecord struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func (h *redisHandle) Destroy(ctx context.Context, id objectid.ID) error {
	a := h.adapter
	field := fmt.Sprint(int64(id))

	raw, err := a.client.HGet(ctx, a.objectsKey, field).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Destroy", "RedisAdapter")
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Destroy", "RedisAdapter")
	}

	pipe := a.client.TxPipeline()
	pipe.HDel(ctx, a.objectsKey, field)
	if rec.Name != "" {
		pipe.HDel(ctx, a.namesKey, rec.Name)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return dberror.Wrap(err, dberror.BackingFailure, "Destroy", "RedisAdapter")
	}
	return nil
}

func (h *redisHandle) Peek(ctx context.Context, id objectid.ID) (any, bool, error) {
	a := h.adapter

	raw, err := a.client.HGet(ctx, a.objectsKey, fmt.Sprint(int64(id))).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dberror.Wrap(err, dberror.BackingFailure, "Peek", "RedisAdapter")
	}

	var rec redisRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, false, dberror.Wrap(err, dberror.BackingFailure, "Peek", "RedisAdapter")
	}

	var value any
	if err := json.Unmarshal(rec.Payload, &value); err != nil {
		return nil, false, dberror.Wrap(err, dberror.BackingFailure, "Peek", "RedisAdapter")
	}
	return value, true, nil
}

func (h *redisHandle) Lock(ctx context.Context, id objectid.ID) (any, bool, error) {
	return h.Peek(ctx, id)
}

func (h *redisHandle) Lookup(ctx context.Context, name string) (objectid.ID, error) {
	a := h.adapter

	val, err := a.client.HGet(ctx, a.namesKey, name).Int64()
	if err == redis.Nil {
		return objectid.Absent, nil
	}
	if err != nil {
		return objectid.Absent, dberror.Wrap(err, dberror.BackingFailure, "Lookup", "RedisAdapter")
	}
	return objectid.ID(val), nil
}

func (h *redisHandle) LookupObject(ctx context.Context, value any) (objectid.ID, error) {
	a := h.adapter

	target, err := json.Marshal(value)
	if err != nil {
		return objectid.Absent, dberror.Wrap(err, dberror.BackingFailure, "LookupObject", "RedisAdapter")
	}

	all, err := a.client.HGetAll(ctx, a.objectsKey).Result()
	if err != nil {
		return objectid.Absent, dberror.Wrap(err, dberror.BackingFailure, "LookupObject", "RedisAdapter")
	}

	for field, raw := range all {
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if jsonEqual(rec.Payload, target) {
			var n int64
			if _, err := fmt.Sscan(field, &n); err == nil {
				return objectid.ID(n), nil
			}
		}
	}
	return objectid.Absent, nil
}

func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if json.Unmarshal(a, &av) != nil || json.Unmarshal(b, &bv) != nil {
		return false
	}
	na, aok := av.(float64)
	nb, bok := bv.(float64)
	if aok && bok {
		return na == nb
	}
	return string(a) == string(b)
}

func (h *redisHandle) Commit(_ context.Context) error { return nil }
func (h *redisHandle) Abort(_ context.Context) error  { return nil }

func (h *redisHandle) CurrentAppID() uuid.UUID { return h.adapter.appID }
