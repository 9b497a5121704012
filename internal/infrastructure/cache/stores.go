package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mimi6060/festival/internal/domain/errors"
	domain "github.com/mimi6060/festival/internal/domain/fraud"
	"github.com/mimi6060/festival/internal/service/fraud/risk"
)

const (
	profileKeyPrefix = "festival:fraud:profile:"
	calibrationKey   = "festival:fraud:calibration"

	// Profiles refresh on every scored transaction; a stale one only
	// weakens the history factor.
	profileTTL = 90 * 24 * time.Hour
)

// ProfileStore persists user risk profiles in Redis.
type ProfileStore struct {
	cache Cache
}

func NewProfileStore(cache Cache) *ProfileStore {
	return &ProfileStore{cache: cache}
}

func (s *ProfileStore) GetProfile(ctx context.Context, userID string) (*domain.UserRiskProfile, error) {
	var profile domain.UserRiskProfile
	if err := s.cache.GetJSON(ctx, profileKeyPrefix+userID, &profile); err != nil {
		if IsNotFound(err) {
			return nil, errors.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileStore) PutProfile(ctx context.Context, profile *domain.UserRiskProfile) error {
	return s.cache.SetJSON(ctx, profileKeyPrefix+profile.UserID, profile, profileTTL)
}

// CalibrationStore persists scorer calibration in Redis.
type CalibrationStore struct {
	cache Cache
}

func NewCalibrationStore(cache Cache) *CalibrationStore {
	return &CalibrationStore{cache: cache}
}

func (s *CalibrationStore) LoadCalibration(ctx context.Context) (risk.Calibration, error) {
	var c risk.Calibration
	if err := s.cache.GetJSON(ctx, calibrationKey, &c); err != nil {
		if IsNotFound(err) {
			return risk.Calibration{}, errors.ErrCalibrationNotFound
		}
		return risk.Calibration{}, err
	}
	return c, nil
}

func (s *CalibrationStore) SaveCalibration(ctx context.Context, c risk.Calibration) error {
	return s.cache.SetJSON(ctx, calibrationKey, c, 0)
}

// MemoryProfileStore keeps profiles in process memory. It backs the
// detector when Redis is disabled.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.UserRiskProfile
}

func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[string]*domain.UserRiskProfile)}
}

func (s *MemoryProfileStore) GetProfile(ctx context.Context, userID string) (*domain.UserRiskProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, errors.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (s *MemoryProfileStore) PutProfile(ctx context.Context, profile *domain.UserRiskProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *profile
	s.profiles[profile.UserID] = &copied
	return nil
}

// MemoryCalibrationStore keeps calibration in process memory.
type MemoryCalibrationStore struct {
	mu    sync.RWMutex
	cal   risk.Calibration
	saved bool
}

func NewMemoryCalibrationStore() *MemoryCalibrationStore {
	return &MemoryCalibrationStore{}
}

func (s *MemoryCalibrationStore) LoadCalibration(ctx context.Context) (risk.Calibration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.saved {
		return risk.Calibration{}, errors.ErrCalibrationNotFound
	}
	return s.cal, nil
}

func (s *MemoryCalibrationStore) SaveCalibration(ctx context.Context, c risk.Calibration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal = c
	s.saved = true
	return nil
}
