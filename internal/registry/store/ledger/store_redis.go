package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"hashplanet/internal/registry/models"
	id "hashplanet/pkg/domain"
	"hashplanet/pkg/platform/sentinel"
	"hashplanet/pkg/requestcontext"
)

// DefaultRedisPrefix namespaces ledger keys. It is wrapped in a hash tag so
// every key of one ledger lands on the same cluster slot and the scripts
// below may touch all of them atomically.
const DefaultRedisPrefix = "hashplanet"

// Script return codes shared by the Lua programs.
const (
	scriptOK       = 0
	scriptMissing  = -1
	scriptMismatch = -2
)

// transferScript is the compare-and-swap behind TransferOwnership.
// KEYS: entry, balances, unclaimed. ARGV: from owner, to owner ("" = unclaimed).
var transferScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
if redis.call('HGET', KEYS[1], 'owner') ~= ARGV[1] then return -2 end
redis.call('HSET', KEYS[1], 'owner', ARGV[2])
if ARGV[1] == '' then
  redis.call('DECR', KEYS[3])
elseif redis.call('HINCRBY', KEYS[2], ARGV[1], -1) <= 0 then
  redis.call('HDEL', KEYS[2], ARGV[1])
end
if ARGV[2] == '' then
  redis.call('INCR', KEYS[3])
else
  redis.call('HINCRBY', KEYS[2], ARGV[2], 1)
end
return 0
`)

// registerScript appends one entry at the next index.
// KEYS: entry, index, balances, unclaimed. ARGV: id hex, source, owner, created.
var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return -1 end
local idx = redis.call('RPUSH', KEYS[2], ARGV[1]) - 1
redis.call('HSET', KEYS[1], 'source', ARGV[2], 'index', tostring(idx), 'owner', ARGV[3], 'created', ARGV[4])
if ARGV[3] == '' then
  redis.call('INCR', KEYS[4])
else
  redis.call('HINCRBY', KEYS[3], ARGV[3], 1)
end
return idx
`)

// bootstrapScript writes or verifies the genesis prefix in one step.
// KEYS: index, unclaimed, then one entry key per seed.
// ARGV: created, then id hex and source per seed.
var bootstrapScript = redis.NewScript(`
local n = #KEYS - 2
local existing = redis.call('LLEN', KEYS[1])
if existing == 0 then
  for i = 1, n do
    local idhex = ARGV[2 * i]
    redis.call('RPUSH', KEYS[1], idhex)
    redis.call('HSET', KEYS[2 + i], 'source', ARGV[2 * i + 1], 'index', tostring(i - 1), 'owner', '', 'created', ARGV[1])
  end
  redis.call('INCRBY', KEYS[2], n)
  return 0
end
if existing < n then return -2 end
local ids = redis.call('LRANGE', KEYS[1], 0, n - 1)
for i = 1, n do
  if ids[i] ~= ARGV[2 * i] then return -2 end
  if redis.call('HGET', KEYS[2 + i], 'source') ~= ARGV[2 * i + 1] then return -2 end
end
return 0
`)

// RedisStore keeps the ledger in Redis:
//
//	{prefix}:entry:<hex>  hash  source, index, owner, created
//	{prefix}:index        list  identifier hex in index order
//	{prefix}:balances     hash  principal -> entry count
//	{prefix}:unclaimed    int   entries held by the registry
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisPrefix overrides DefaultRedisPrefix, e.g. to host several
// registries in one database.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedis constructs a Redis-backed ledger.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisStore) key(suffix string) string {
	return "{" + s.prefix + "}:" + suffix
}

func (s *RedisStore) entryKey(tokenID id.Identifier) string {
	return s.key("entry:" + hex.EncodeToString(tokenID[:]))
}

func (s *RedisStore) Bootstrap(ctx context.Context, seeds []models.Seed) error {
	if err := checkSeeds(seeds); err != nil {
		return err
	}
	keys := make([]string, 0, len(seeds)+2)
	keys = append(keys, s.key("index"), s.key("unclaimed"))
	args := make([]any, 0, 2*len(seeds)+1)
	args = append(args, strconv.FormatInt(requestcontext.Now(ctx).UnixNano(), 10))
	for _, seed := range seeds {
		keys = append(keys, s.entryKey(seed.ID))
		args = append(args, hex.EncodeToString(seed.ID[:]), seed.Source)
	}
	code, err := bootstrapScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("bootstrap ledger: %w", err)
	}
	if code == scriptMismatch {
		return fmt.Errorf("ledger does not start with the configured genesis: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) Find(ctx context.Context, tokenID id.Identifier) (*models.Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(tokenID)).Result()
	if err != nil {
		return nil, fmt.Errorf("find entry: %w", err)
	}
	if len(fields) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return decodeEntry(tokenID, fields)
}

func (s *RedisStore) EntryAt(ctx context.Context, index int) (id.Identifier, error) {
	if index < 0 {
		return id.Identifier{}, sentinel.ErrOutOfRange
	}
	raw, err := s.client.LIndex(ctx, s.key("index"), int64(index)).Result()
	if errors.Is(err, redis.Nil) {
		return id.Identifier{}, sentinel.ErrOutOfRange
	}
	if err != nil {
		return id.Identifier{}, fmt.Errorf("entry at %d: %w", index, err)
	}
	return decodeIdentifier(raw)
}

func (s *RedisStore) List(ctx context.Context, offset, limit int) ([]models.Entry, error) {
	if offset < 0 || limit <= 0 {
		return []models.Entry{}, nil
	}
	ids, err := s.client.LRange(ctx, s.key("index"), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	if len(ids) == 0 {
		return []models.Entry{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, raw := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.key("entry:"+raw))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	out := make([]models.Entry, 0, len(ids))
	for i, raw := range ids {
		tokenID, err := decodeIdentifier(raw)
		if err != nil {
			return nil, err
		}
		entry, err := decodeEntry(tokenID, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		out = append(out, *entry)
	}
	return out, nil
}

func (s *RedisStore) BalanceOf(ctx context.Context, holder models.State) (int, error) {
	var (
		n   int
		err error
	)
	if owner, ok := holder.Owner(); ok {
		n, err = s.client.HGet(ctx, s.key("balances"), string(owner)).Int()
	} else {
		n, err = s.client.Get(ctx, s.key("unclaimed")).Int()
	}
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("balance of %s: %w", holder, err)
	}
	return n, nil
}

func (s *RedisStore) TotalSupply(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, s.key("index")).Result()
	if err != nil {
		return 0, fmt.Errorf("total supply: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Register(ctx context.Context, tokenID id.Identifier, source string, state models.State) (*models.Entry, error) {
	now := requestcontext.Now(ctx)
	keys := []string{s.entryKey(tokenID), s.key("index"), s.key("balances"), s.key("unclaimed")}
	idx, err := registerScript.Run(ctx, s.client, keys,
		hex.EncodeToString(tokenID[:]), source, state.StorageOwner(), strconv.FormatInt(now.UnixNano(), 10),
	).Int()
	if err != nil {
		return nil, fmt.Errorf("register entry: %w", err)
	}
	if idx == scriptMissing {
		return nil, sentinel.ErrConflict
	}
	return &models.Entry{ID: tokenID, Source: source, Index: idx, State: state, CreatedAt: time.Unix(0, now.UnixNano())}, nil
}

func (s *RedisStore) TransferOwnership(ctx context.Context, tokenID id.Identifier, from, to models.State) error {
	keys := []string{s.entryKey(tokenID), s.key("balances"), s.key("unclaimed")}
	code, err := transferScript.Run(ctx, s.client, keys, from.StorageOwner(), to.StorageOwner()).Int()
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	switch code {
	case scriptOK:
		return nil
	case scriptMissing:
		return sentinel.ErrNotFound
	default:
		return sentinel.ErrInvalidState
	}
}

func decodeIdentifier(raw string) (id.Identifier, error) {
	var out id.Identifier
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != id.IdentifierSize {
		return out, fmt.Errorf("corrupt identifier %q in ledger index", raw)
	}
	copy(out[:], b)
	return out, nil
}

func decodeEntry(tokenID id.Identifier, fields map[string]string) (*models.Entry, error) {
	index, err := strconv.Atoi(fields["index"])
	if err != nil {
		return nil, fmt.Errorf("corrupt index for %s: %w", tokenID.Hex(), err)
	}
	var created time.Time
	if nanos, err := strconv.ParseInt(fields["created"], 10, 64); err == nil {
		created = time.Unix(0, nanos)
	}
	return &models.Entry{
		ID:        tokenID,
		Source:    fields["source"],
		Index:     index,
		State:     models.StateFromStorage(fields["owner"]),
		CreatedAt: created,
	}, nil
}
