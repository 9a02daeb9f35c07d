package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/credauth/internal/dependencies/clock"
	"github.com/mcoot/credauth/internal/model"
	"github.com/mcoot/credauth/internal/storage"
)

// Storage is a Redis-backed implementation of the account and session stores
type Storage struct {
	client *redis.Client
	cfg    Config
	clock  clock.Clock
}

// accountRecord is the stored form of an account.
// model.Account hides the hash from JSON so it is carried explicitly here.
type accountRecord struct {
	ID           model.AccountID     `json:"id"`
	Name         string              `json:"name"`
	Nickname     string              `json:"nickname"`
	Identifier   string              `json:"identifier"`
	Email        string              `json:"email"`
	PasswordHash string              `json:"password_hash"`
	Status       model.AccountStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
}

func toRecord(a *model.Account) accountRecord {
	return accountRecord{
		ID:           a.ID,
		Name:         a.Name,
		Nickname:     a.Nickname,
		Identifier:   a.Identifier,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Status:       a.Status,
		CreatedAt:    a.CreatedAt,
	}
}

func (r accountRecord) account() *model.Account {
	return &model.Account{
		ID:           r.ID,
		Name:         r.Name,
		Nickname:     r.Nickname,
		Identifier:   r.Identifier,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
	}
}

// New creates a new Redis storage instance
func New(cfg Config, clk clock.Clock) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewWithClient(client, cfg, clk), nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config, clk clock.Clock) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
		clock:  clk,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping reports whether Redis is reachable
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Storage implements the interfaces
var (
	_ storage.AccountStore = (*Storage)(nil)
	_ storage.SessionStore = (*Storage)(nil)
)

// Account operations

func (s *Storage) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	id, err := s.client.Get(ctx, emailIndexKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetByID(ctx, model.AccountID(id))
}

func (s *Storage) GetByID(ctx context.Context, id model.AccountID) (*model.Account, error) {
	rec, err := getRecord(ctx, s.client, id)
	if err != nil {
		return nil, err
	}
	return rec.account(), nil
}

func getRecord(ctx context.Context, c redis.Cmdable, id model.AccountID) (*accountRecord, error) {
	data, err := c.Get(ctx, accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrAccountNotFound
		}
		return nil, err
	}

	var rec accountRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Storage) ExistsByEmailOrIdentifier(ctx context.Context, email, identifier string) (bool, error) {
	n, err := s.client.Exists(ctx, emailIndexKey(email), identifierIndexKey(identifier)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Insert claims both index keys and writes the record in one transaction.
// Index keys are only ever written here, so a failed WATCH means another
// insert claimed one of them first.
func (s *Storage) Insert(ctx context.Context, reg model.CleanRegistration, passwordHash string) (model.AccountID, error) {
	account := storage.NewAccount(reg, passwordHash, s.clock.Now())
	data, err := json.Marshal(toRecord(account))
	if err != nil {
		return "", err
	}

	emailKey := emailIndexKey(account.Email)
	identifierKey := identifierIndexKey(account.Identifier)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, emailKey, identifierKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return model.ErrDuplicateAccount
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, accountKey(account.ID), data, 0)
			pipe.Set(ctx, emailKey, string(account.ID), 0)
			pipe.Set(ctx, identifierKey, string(account.ID), 0)
			return nil
		})
		return err
	}, emailKey, identifierKey)

	if errors.Is(err, redis.TxFailedErr) {
		return "", model.ErrDuplicateAccount
	}
	if err != nil {
		return "", err
	}
	return account.ID, nil
}

func (s *Storage) UpdatePasswordHash(ctx context.Context, id model.AccountID, passwordHash string) error {
	return s.updateAccount(ctx, id, func(rec *accountRecord) {
		rec.PasswordHash = passwordHash
	})
}

func (s *Storage) SetStatus(ctx context.Context, id model.AccountID, status model.AccountStatus) error {
	if !status.Valid() {
		return model.ErrInvalidStatus
	}
	return s.updateAccount(ctx, id, func(rec *accountRecord) {
		rec.Status = status
	})
}

// updateAccount applies fn to the stored record under WATCH
func (s *Storage) updateAccount(ctx context.Context, id model.AccountID, fn func(*accountRecord)) error {
	key := accountKey(id)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		rec, err := getRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		fn(rec)

		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
}

// Session operations

// SaveSession writes sess with a key TTL matching its remaining lifetime.
// A session that is already expired is removed instead.
func (s *Storage) SaveSession(ctx context.Context, sess *model.Session) error {
	ttl := sess.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return s.DeleteSession(ctx, sess.ID)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), data, ttl)
	pipe.ZAdd(ctx, sessionExpiryKey(), redis.Z{
		Score:  float64(sess.ExpiresAt.UnixMilli()),
		Member: sess.ID,
	})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetSession(ctx context.Context, id string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrSessionNotFound
		}
		return nil, err
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	if !sess.ExpiresAt.After(s.clock.Now()) {
		return nil, model.ErrSessionNotFound
	}
	return &sess, nil
}

func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, sessionKey(id))
	pipe.ZRem(ctx, sessionExpiryKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// DeleteExpiredSessions removes sessions whose expiry score is at or before now.
// Most are already gone through key TTL; this keeps the expiry index bounded.
func (s *Storage) DeleteExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, sessionExpiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, sessionExpiryKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return len(ids), nil
}
