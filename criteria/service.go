package criteria

import "fmt"

// Service binds an Engine to a Store and a Cache. It validates definitions
// before they reach the store, keeps the active-criteria cache coherent
// across mutations, and evaluates stored criteria by ID so callers never
// load definitions themselves.
type Service struct {
	engine *Engine
	store  Store
	cache  Cache
}

// NewService creates a service over the given store with a default engine
// and an in-memory cache.
func NewService(store Store) *Service {
	return &Service{
		engine: NewEngine(),
		store:  store,
		cache:  NewInMemoryCache(DefaultCacheConfig()),
	}
}

// NewServiceWithEngine creates a service with a custom engine, for callers
// that registered their own operators or scorers.
func NewServiceWithEngine(engine *Engine, store Store, cache Cache) *Service {
	return &Service{
		engine: engine,
		store:  store,
		cache:  cache,
	}
}

// Engine exposes the underlying engine, for operator registration.
func (s *Service) Engine() *Engine { return s.engine }

// Add validates a criteria definition and stores it. An invalid definition
// never reaches the store.
func (s *Service) Add(c *Criteria) error {
	if err := s.engine.Validate(c); err != nil {
		return fmt.Errorf("criteria validation failed: %w", err)
	}

	if err := s.store.Add(c); err != nil {
		return err
	}

	// Invalidate cache since the criteria list changed
	s.cache.Invalidate()

	return nil
}

// Get retrieves a stored criteria by ID.
func (s *Service) Get(id string) (*Criteria, error) {
	return s.store.Get(id)
}

// Update validates the new definition before replacing the stored one.
func (s *Service) Update(c *Criteria) error {
	if err := s.engine.Validate(c); err != nil {
		return fmt.Errorf("criteria validation failed: %w", err)
	}

	if err := s.store.Update(c); err != nil {
		return err
	}

	s.cache.Invalidate()

	return nil
}

// Delete removes a stored criteria.
func (s *Service) Delete(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}

	s.cache.Invalidate()

	return nil
}

// ListActive returns the active criteria, served from cache when possible.
func (s *Service) ListActive() ([]*Criteria, error) {
	if cached := s.cache.Get(); cached != nil {
		return cached, nil
	}

	list, err := s.store.ListActive()
	if err != nil {
		return nil, err
	}
	s.cache.Set(list)
	return list, nil
}

// Evaluate runs one stored criteria against a data snapshot.
func (s *Service) Evaluate(id string, data map[string]any) (*EvaluationResult, error) {
	c, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return s.engine.Evaluate(c, data)
}

// EvaluateAll runs every active criteria against the same snapshot,
// continuing past per-criteria configuration errors so one bad definition
// never blocks the rest. Results keep the active-list order.
func (s *Service) EvaluateAll(data map[string]any) ([]*EvaluationResult, []error) {
	list, err := s.ListActive()
	if err != nil {
		return nil, []error{err}
	}

	results := make([]*EvaluationResult, 0, len(list))
	var errs []error
	for _, c := range list {
		result, err := s.engine.Evaluate(c, data)
		if err != nil {
			errs = append(errs, fmt.Errorf("criteria %s: %w", c.ID, err))
			continue
		}
		results = append(results, result)
	}

	return results, errs
}
