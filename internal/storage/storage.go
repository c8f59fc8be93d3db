package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/olgkv/bookmarkchecker/internal/domain"
)

const DefaultCapacity = 100

var ErrRunNotFound = errors.New("run not found")

// MemoryStorage keeps the most recent finished runs in memory so they can be
// exported after the check. The oldest run is evicted once capacity is reached.
type MemoryStorage struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	runs     map[string]*domain.Run
	checked  int

	now   func() time.Time
	newID func() string
}

func NewMemoryStorage(capacity int) *MemoryStorage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStorage{
		capacity: capacity,
		runs:     make(map[string]*domain.Run),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

func (s *MemoryStorage) SaveRun(results []domain.Result) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	if _, exists := s.runs[id]; exists {
		return nil, fmt.Errorf("run %s already exists", id)
	}

	run := &domain.Run{
		ID:        id,
		CreatedAt: s.now().UTC(),
		Summary:   domain.Summarize(results),
		Results:   results,
	}
	s.runs[id] = run
	s.order = append(s.order, id)
	s.checked += len(results)

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.runs, oldest)
	}
	return run, nil
}

func (s *MemoryStorage) GetRun(id string) (*domain.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Stats возвращает количество сохранённых прогонов и общее число проверенных закладок.
func (s *MemoryStorage) Stats() (runs int, checked int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runs), s.checked
}
