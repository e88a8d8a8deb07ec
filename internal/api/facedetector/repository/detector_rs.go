package faceDetectorRepository

import (
	"FaceBridge/internal/entity"
	"FaceBridge/pkg/engine"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var errSessionVanished = errors.New("detector session closed while it was being created")

const maxAcquireAttempts = 3

type detectorEntry struct {
	detector  engine.Detector
	options   entity.DetectorOptions
	createdAt time.Time
	lastUsed  time.Time
	inFlight  int
}

type detectorStore struct {
	mu      sync.Mutex
	entries map[string]*detectorEntry
	group   singleflight.Group
	log     *logrus.Logger
	now     func() time.Time
}

func newDetectorStore(log *logrus.Logger) *detectorStore {
	return &detectorStore{
		entries: make(map[string]*detectorEntry),
		log:     log,
		now:     time.Now,
	}
}

func (s *detectorStore) GetOrCreate(id string, create CreateFunc) (engine.Detector, func(), bool, error) {
	created := false

	for attempt := 0; attempt < maxAcquireAttempts; attempt++ {
		if detector, release, ok := s.acquire(id); ok {
			return detector, release, created, nil
		}

		_, err, _ := s.group.Do(id, func() (interface{}, error) {
			s.mu.Lock()
			_, exists := s.entries[id]
			s.mu.Unlock()
			if exists {
				return nil, nil
			}

			detector, options, err := create()
			if err != nil {
				return nil, err
			}

			now := s.now()
			s.mu.Lock()
			s.entries[id] = &detectorEntry{
				detector:  detector,
				options:   options,
				createdAt: now,
				lastUsed:  now,
			}
			s.mu.Unlock()
			created = true

			s.log.WithFields(logrus.Fields{
				"session_id": id,
				"mode":       options.PerformanceMode,
				"tracking":   options.TrackingEnabled,
			}).Debug("Detector handle created")

			return nil, nil
		})
		if err != nil {
			return nil, nil, false, err
		}
	}

	return nil, nil, false, errSessionVanished
}

func (s *detectorStore) acquire(id string) (engine.Detector, func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, nil, false
	}

	entry.inFlight++
	entry.lastUsed = s.now()

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			entry.inFlight--
			entry.lastUsed = s.now()
			s.mu.Unlock()
		})
	}

	return entry.detector, release, true
}

func (s *detectorStore) Get(id string) (engine.Detector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return entry.detector, true
}

func (s *detectorStore) Remove(id string) (engine.Detector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	delete(s.entries, id)

	return entry.detector, true
}

func (s *detectorStore) Drain() map[string]engine.Detector {
	s.mu.Lock()
	entries := s.entries
	s.entries = make(map[string]*detectorEntry)
	s.mu.Unlock()

	drained := make(map[string]engine.Detector, len(entries))
	for id, entry := range entries {
		drained[id] = entry.detector
	}
	return drained
}

// EvictIdle removes every handle that has no work in flight and has not
// been used for at least idle.
func (s *detectorStore) EvictIdle(idle time.Duration) map[string]engine.Detector {
	evicted := make(map[string]engine.Detector)
	if idle <= 0 {
		return evicted
	}

	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if entry.inFlight > 0 || entry.lastUsed.After(cutoff) {
			continue
		}
		evicted[id] = entry.detector
		delete(s.entries, id)
	}

	return evicted
}

func (s *detectorStore) Snapshot() []entity.DetectorSession {
	s.mu.Lock()
	sessions := make([]entity.DetectorSession, 0, len(s.entries))
	for id, entry := range s.entries {
		sessions = append(sessions, entity.DetectorSession{
			ID:        id,
			Options:   entry.options,
			CreatedAt: entry.createdAt,
			LastUsed:  entry.lastUsed,
			InFlight:  entry.inFlight,
		})
	}
	s.mu.Unlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].ID < sessions[j].ID
	})

	return sessions
}

func (s *detectorStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
