package faceDetectorRepository

import (
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
	"FaceBridge/pkg/redis"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// CreateFunc builds the detector stored for a session on a cache miss.
type CreateFunc func() (engine.Detector, entity.DetectorOptions, error)

type Repository interface {
	Detectors() DetectorStore
	Ledger() SessionLedger
}

// DetectorStore is the process-wide cache of detector handles keyed by
// session id. At most one handle exists per id.
type DetectorStore interface {
	// GetOrCreate returns the cached detector for id, or builds one with
	// create. Concurrent misses for the same id share a single create call.
	// The returned release func must be called once the caller is done
	// using the detector.
	GetOrCreate(id string, create CreateFunc) (engine.Detector, func(), bool, error)
	Get(id string) (engine.Detector, bool)
	Remove(id string) (engine.Detector, bool)
	Drain() map[string]engine.Detector
	Snapshot() []entity.DetectorSession
	EvictIdle(idle time.Duration) map[string]engine.Detector
	Len() int
}

// SessionLedger mirrors detector lifecycle events to shared storage for
// operators. It is never read back to rebuild a handle.
type SessionLedger interface {
	Record(ctx context.Context, session entity.DetectorSession) error
	Touch(ctx context.Context, id string) error
	Forget(ctx context.Context, ids ...string) error
	List(ctx context.Context) ([]string, error)
}

type repository struct {
	detectors DetectorStore
	ledger    SessionLedger
}

func New(log *logrus.Logger, redisServer redis.IRedis, ledgerTTL time.Duration) Repository {
	var ledger SessionLedger = noopLedger{}
	if redisServer != nil {
		ledger = newRedisLedger(log, redisServer, ledgerTTL)
	}

	return &repository{
		detectors: newDetectorStore(log),
		ledger:    ledger,
	}
}

func (r *repository) Detectors() DetectorStore {
	return r.detectors
}

func (r *repository) Ledger() SessionLedger {
	return r.ledger
}
