package criteria

import (
	"fmt"
	"sync"
	"time"
)

// Store manages persistence and retrieval of criteria definitions. The
// engine never loads lazily: a store hands back fully resolved definitions
// with all rules and groups attached.
type Store interface {
	// Add a new criteria definition
	Add(c *Criteria) error

	// Get a criteria by ID
	Get(id string) (*Criteria, error)

	// ListActive returns all active criteria
	ListActive() ([]*Criteria, error)

	// Update an existing criteria
	Update(c *Criteria) error

	// Delete a criteria
	Delete(id string) error
}

// InMemoryStore implements Store using an in-memory map. Thread-safe with
// an RWMutex.
type InMemoryStore struct {
	criteria map[string]*Criteria
	mu       sync.RWMutex
}

// NewInMemoryStore creates a new in-memory criteria store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		criteria: make(map[string]*Criteria),
	}
}

// Add adds a new criteria to the store, enforcing unique IDs and setting
// timestamps.
func (s *InMemoryStore) Add(c *Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.criteria[c.ID]; exists {
		return fmt.Errorf("criteria with ID %s already exists", c.ID)
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	s.criteria[c.ID] = c
	return nil
}

// Get retrieves a criteria by ID
func (s *InMemoryStore) Get(id string) (*Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.criteria[id]
	if !exists {
		return nil, fmt.Errorf("criteria with ID %s not found", id)
	}
	return c, nil
}

// ListActive returns all active criteria
func (s *InMemoryStore) ListActive() ([]*Criteria, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Criteria
	for _, c := range s.criteria {
		if c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

// Update updates an existing criteria, preserving the original CreatedAt
// timestamp.
func (s *InMemoryStore) Update(c *Criteria) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.criteria[c.ID]
	if !exists {
		return fmt.Errorf("criteria with ID %s not found", c.ID)
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	s.criteria[c.ID] = c
	return nil
}

// Delete removes a criteria from the store
func (s *InMemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.criteria[id]; !exists {
		return fmt.Errorf("criteria with ID %s not found", id)
	}

	delete(s.criteria, id)
	return nil
}
