package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invoicedesk/internal/invoice/domain"
	"go.uber.org/zap"
)

const BackendRedis = "redis"

// appendScript assigns the next number and stores the row in one step.
// KEYS: sequence, rows hash, order list. ARGV: payload, start number.
const appendScript = `
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local start = tonumber(ARGV[2])
local nxt = current + 1
if nxt < start then
  nxt = start
end
redis.call("SET", KEYS[1], nxt)
redis.call("HSET", KEYS[2], tostring(nxt), ARGV[1])
redis.call("RPUSH", KEYS[3], tostring(nxt))
return nxt
`

type RedisStore struct {
	client redis.UniversalClient
	script *redis.Script
	prefix string
	start  int64
	log    *zap.Logger
}

func NewRedisStore(client redis.UniversalClient, prefix string, start int64, log *zap.Logger) *RedisStore {
	if log == nil {
		log = zap.NewNop()
	}
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "invoicedesk"
	}
	return &RedisStore{
		client: client,
		script: redis.NewScript(appendScript),
		prefix: prefix,
		start:  start,
		log:    log.Named("invoice.store.redis"),
	}
}

func (s *RedisStore) Backend() string { return BackendRedis }

func (s *RedisStore) NextInvoiceNumber(ctx context.Context) (int64, error) {
	current, err := s.client.Get(ctx, s.seqKey()).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, domain.NewStorageError(BackendRedis, "next_number", err)
	}
	return nextFrom(current, s.start), nil
}

func (s *RedisStore) Save(ctx context.Context, rec domain.InvoiceRecord) (domain.InvoiceRecord, error) {
	saved := prepare(rec, 0)
	stored, err := encodeRecord(saved)
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendRedis, "save", err)
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendRedis, "save", err)
	}

	start := s.start
	if start < 1 {
		start = 1
	}
	keys := []string{s.seqKey(), s.rowsKey(), s.orderKey()}
	number, err := s.script.Run(ctx, s.client, keys, string(payload), start).Int64()
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendRedis, "save", err)
	}

	saved.InvoiceNumber = number
	s.log.Debug("invoice stored", zap.Int64("invoice_number", number))
	return saved, nil
}

func (s *RedisStore) Get(ctx context.Context, invoiceNumber int64) (domain.InvoiceRecord, error) {
	raw, err := s.client.HGet(ctx, s.rowsKey(), strconv.FormatInt(invoiceNumber, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.InvoiceRecord{}, domain.ErrInvoiceNotFound
	}
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendRedis, "get", err)
	}
	rec, err := decodePayload(invoiceNumber, raw)
	if err != nil {
		return domain.InvoiceRecord{}, domain.NewStorageError(BackendRedis, "get", err)
	}
	return rec, nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]domain.InvoiceRecord, error) {
	order, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, domain.NewStorageError(BackendRedis, "list", err)
	}
	if len(order) == 0 {
		return []domain.InvoiceRecord{}, nil
	}

	values, err := s.client.HMGet(ctx, s.rowsKey(), order...).Result()
	if err != nil {
		return nil, domain.NewStorageError(BackendRedis, "list", err)
	}

	out := make([]domain.InvoiceRecord, 0, len(order))
	for i, field := range order {
		raw, ok := values[i].(string)
		if !ok {
			return nil, domain.NewStorageError(BackendRedis, "list", fmt.Errorf("row %s missing", field))
		}
		number, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, domain.NewStorageError(BackendRedis, "list", err)
		}
		rec, err := decodePayload(number, raw)
		if err != nil {
			return nil, domain.NewStorageError(BackendRedis, "list", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodePayload(number int64, raw string) (domain.InvoiceRecord, error) {
	var stored storedRecord
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.InvoiceRecord{}, fmt.Errorf("decode invoice %d: %w", number, err)
	}
	stored.InvoiceNumber = number
	return decodeRecord(stored)
}

func (s *RedisStore) seqKey() string   { return s.prefix + ":invoices:seq" }
func (s *RedisStore) rowsKey() string  { return s.prefix + ":invoices:rows" }
func (s *RedisStore) orderKey() string { return s.prefix + ":invoices:order" }
