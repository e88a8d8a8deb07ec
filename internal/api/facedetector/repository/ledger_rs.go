package faceDetectorRepository

import (
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/log"
	"FaceBridge/pkg/redis"
	"context"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

const ledgerKeyPrefix = "facebridge:session:"

func ledgerKey(id string) string {
	return ledgerKeyPrefix + id
}

type redisLedger struct {
	redis redis.IRedis
	ttl   time.Duration
	log   *logrus.Logger
}

func newRedisLedger(log *logrus.Logger, redisServer redis.IRedis, ttl time.Duration) *redisLedger {
	return &redisLedger{
		redis: redisServer,
		ttl:   ttl,
		log:   log,
	}
}

func (l *redisLedger) Record(ctx context.Context, session entity.DetectorSession) error {
	payload, err := jsoniter.Marshal(session)
	if err != nil {
		log.FromContext(l.log, ctx).WithError(err).Error("Failed to marshal detector session")
		return err
	}

	return l.redis.SetValue(ctx, ledgerKey(session.ID), payload, l.ttl)
}

func (l *redisLedger) Touch(ctx context.Context, id string) error {
	return l.redis.Refresh(ctx, ledgerKey(id), l.ttl)
}

func (l *redisLedger) Forget(ctx context.Context, ids ...string) error {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, ledgerKey(id))
	}
	return l.redis.DeleteKeys(ctx, keys...)
}

func (l *redisLedger) List(ctx context.Context) ([]string, error) {
	keys, err := l.redis.ScanKeys(ctx, ledgerKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, ledgerKeyPrefix))
	}
	sort.Strings(ids)

	return ids, nil
}

type noopLedger struct{}

func (noopLedger) Record(context.Context, entity.DetectorSession) error { return nil }
func (noopLedger) Touch(context.Context, string) error                  { return nil }
func (noopLedger) Forget(context.Context, ...string) error              { return nil }
func (noopLedger) List(context.Context) ([]string, error)               { return nil, nil }
