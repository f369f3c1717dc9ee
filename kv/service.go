package kv

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"kv-gateway/apperr"
	"kv-gateway/backend"
	"kv-gateway/logging"
)

const (
	MsgCreated   = "Key created successfully"
	MsgUpdated   = "Key updated successfully"
	MsgRetrieved = "Key retrieved successfully"
	MsgDeleted   = "Key deleted successfully"

	msgExists   = "Key already exists"
	msgNotFound = "Key not found"
)

// ConnSource é o que o Service precisa do Pool.
type ConnSource interface {
	Acquire(ctx context.Context, db int) (backend.Conn, error)
}

// Record é a visão lógica de uma chave. TTL em segundos; nil significa sem expiração.
type Record struct {
	Key     string
	Value   string
	TTL     *int64
	DBIndex int
}

// TTLResult distingue "sem TTL" de um valor numérico.
type TTLResult struct {
	Key     string
	DBIndex int
	NoTTL   bool
	Seconds int64
}

type Service struct {
	conns ConnSource
	log   *zap.Logger
}

func NewService(conns ConnSource, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{conns: conns, log: log}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return apperr.New(apperr.InvalidArgument, "key must not be empty")
	}
	return nil
}

func validateTTL(ttl *int64) error {
	if ttl != nil && *ttl < 1 {
		return apperr.New(apperr.InvalidArgument, "ttl must be greater than or equal to 1")
	}
	return nil
}

func (s *Service) acquire(ctx context.Context, key string, db int) (backend.Conn, error) {
	if err := backend.ValidateIndex(db); err != nil {
		return nil, err
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	return s.conns.Acquire(ctx, db)
}

// logger prefere o logger da requisição (com request id) ao do Service.
func (s *Service) logger(ctx context.Context) *zap.Logger {
	if log, ok := logging.Lookup(ctx); ok {
		return log
	}
	return s.log
}

func (s *Service) internal(ctx context.Context, op string, rec Record, err error) error {
	s.logger(ctx).Error("backend operation failed",
		zap.String("op", op),
		zap.String("key", rec.Key),
		zap.Int("db_index", rec.DBIndex),
		zap.Error(err))
	return apperr.Wrap(apperr.Internal, op+" "+rec.Key, err)
}

func ttlDuration(ttl *int64) time.Duration {
	if ttl == nil {
		return 0
	}
	return time.Duration(*ttl) * time.Second
}

// Create grava a chave somente se ela ainda não existir.
func (s *Service) Create(ctx context.Context, rec Record) (Record, error) {
	if err := validateTTL(rec.TTL); err != nil {
		return Record{}, err
	}
	conn, err := s.acquire(ctx, rec.Key, rec.DBIndex)
	if err != nil {
		return Record{}, err
	}
	log := s.logger(ctx).With(zap.String("key", rec.Key), zap.Int("db_index", rec.DBIndex))

	exists, err := conn.Exists(ctx, rec.Key)
	if err != nil {
		return Record{}, s.internal(ctx, "create", rec, err)
	}
	if exists {
		log.Warn("key already exists")
		return Record{}, apperr.New(apperr.Conflict, msgExists)
	}
	if err := conn.Set(ctx, rec.Key, rec.Value, ttlDuration(rec.TTL)); err != nil {
		return Record{}, s.internal(ctx, "create", rec, err)
	}
	log.Info("key created")
	return rec, nil
}

// Update sobrescreve uma chave existente. Sem TTL a expiração anterior é removida.
func (s *Service) Update(ctx context.Context, rec Record) (Record, error) {
	if err := validateTTL(rec.TTL); err != nil {
		return Record{}, err
	}
	conn, err := s.acquire(ctx, rec.Key, rec.DBIndex)
	if err != nil {
		return Record{}, err
	}
	log := s.logger(ctx).With(zap.String("key", rec.Key), zap.Int("db_index", rec.DBIndex))

	exists, err := conn.Exists(ctx, rec.Key)
	if err != nil {
		return Record{}, s.internal(ctx, "update", rec, err)
	}
	if !exists {
		log.Warn("key not found")
		return Record{}, apperr.New(apperr.NotFound, msgNotFound)
	}
	if err := conn.Set(ctx, rec.Key, rec.Value, ttlDuration(rec.TTL)); err != nil {
		return Record{}, s.internal(ctx, "update", rec, err)
	}
	log.Info("key updated")
	return rec, nil
}

func (s *Service) Get(ctx context.Context, key string, db int) (Record, error) {
	rec := Record{Key: key, DBIndex: db}
	conn, err := s.acquire(ctx, key, db)
	if err != nil {
		return Record{}, err
	}

	value, found, err := conn.Get(ctx, key)
	if err != nil {
		return Record{}, s.internal(ctx, "get", rec, err)
	}
	if !found {
		s.logger(ctx).Warn("key not found", zap.String("key", key), zap.Int("db_index", db))
		return Record{}, apperr.New(apperr.NotFound, msgNotFound)
	}
	rec.Value = value

	ttl, err := conn.TTL(ctx, key)
	if err != nil {
		return Record{}, s.internal(ctx, "get", rec, err)
	}
	switch ttl.State {
	case backend.TTLMissing:
		// expirou entre o GET e o TTL
		return Record{}, apperr.New(apperr.NotFound, msgNotFound)
	case backend.TTLExpires:
		secs := ttl.Seconds()
		rec.TTL = &secs
	}
	s.logger(ctx).Info("key retrieved", zap.String("key", key), zap.Int("db_index", db))
	return rec, nil
}

func (s *Service) Delete(ctx context.Context, key string, db int) error {
	rec := Record{Key: key, DBIndex: db}
	conn, err := s.acquire(ctx, key, db)
	if err != nil {
		return err
	}

	exists, err := conn.Exists(ctx, key)
	if err != nil {
		return s.internal(ctx, "delete", rec, err)
	}
	if !exists {
		s.logger(ctx).Warn("key not found", zap.String("key", key), zap.Int("db_index", db))
		return apperr.New(apperr.NotFound, msgNotFound)
	}
	n, err := conn.Del(ctx, key)
	if err != nil {
		return s.internal(ctx, "delete", rec, err)
	}
	if n == 0 {
		return apperr.New(apperr.NotFound, msgNotFound)
	}
	s.logger(ctx).Info("key deleted", zap.String("key", key), zap.Int("db_index", db))
	return nil
}

func (s *Service) TTL(ctx context.Context, key string, db int) (TTLResult, error) {
	rec := Record{Key: key, DBIndex: db}
	conn, err := s.acquire(ctx, key, db)
	if err != nil {
		return TTLResult{}, err
	}

	ttl, err := conn.TTL(ctx, key)
	if err != nil {
		return TTLResult{}, s.internal(ctx, "ttl", rec, err)
	}
	res := TTLResult{Key: key, DBIndex: db}
	switch ttl.State {
	case backend.TTLMissing:
		s.logger(ctx).Warn("key not found", zap.String("key", key), zap.Int("db_index", db))
		return TTLResult{}, apperr.New(apperr.NotFound, msgNotFound)
	case backend.TTLNone:
		res.NoTTL = true
	default:
		res.Seconds = ttl.Seconds()
	}
	return res, nil
}
