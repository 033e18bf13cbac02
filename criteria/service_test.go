package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceAddValidates(t *testing.T) {
	svc := NewService(NewInMemoryStore())

	bad := testCriteria("bad", true)
	bad.Threshold = 200
	err := svc.Add(bad)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	// The invalid definition never reached the store.
	_, err = svc.Get("bad")
	assert.Error(t, err)

	require.NoError(t, svc.Add(testCriteria("good", true)))
	got, err := svc.Get("good")
	require.NoError(t, err)
	assert.Equal(t, "good", got.ID)
}

func TestServiceUpdateValidates(t *testing.T) {
	svc := NewService(NewInMemoryStore())
	require.NoError(t, svc.Add(testCriteria("c1", true)))

	bad := testCriteria("c1", true)
	bad.Rules[0].Op = "almost_eq"
	err := svc.Update(bad)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	got, err := svc.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, OpGreaterEqual, got.Rules[0].Op, "stored definition untouched")
}

func TestServiceListActiveCaching(t *testing.T) {
	store := NewInMemoryStore()
	cache := NewInMemoryCache(DefaultCacheConfig())
	svc := NewServiceWithEngine(NewEngine(), store, cache)

	require.NoError(t, svc.Add(testCriteria("c1", true)))
	require.NoError(t, svc.Add(testCriteria("c2", false)))

	assert.False(t, cache.IsValid(), "mutations invalidate the cache")

	active, err := svc.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, cache.IsValid(), "ListActive primes the cache")

	// A write through the store behind the service's back is invisible
	// until the cache is invalidated.
	require.NoError(t, store.Add(testCriteria("c3", true)))
	active, err = svc.ListActive()
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, svc.Delete("c2"))
	active, err = svc.ListActive()
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestServiceEvaluate(t *testing.T) {
	svc := NewService(NewInMemoryStore())
	require.NoError(t, svc.Add(loanCriteria()))

	result, err := svc.Evaluate("loan-approval", map[string]any{
		"income":       5000,
		"credit_score": 600,
	})
	require.NoError(t, err)
	assert.Equal(t, 40.0, result.Score)
	assert.False(t, result.Passed)

	_, err = svc.Evaluate("missing", nil)
	assert.Error(t, err)
}

func TestServiceEvaluateAllContinuesPastBadDefinitions(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store)

	require.NoError(t, svc.Add(loanCriteria()))

	// Inject a broken definition directly, bypassing service validation,
	// the way a store backed by external writers could.
	broken := testCriteria("broken", true)
	broken.Method = "median"
	require.NoError(t, store.Add(broken))

	results, errs := svc.EvaluateAll(map[string]any{
		"income":       5000,
		"credit_score": 700,
		"age":          30,
	})
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "broken")
	require.Len(t, results, 1)
	assert.Equal(t, "loan-approval", results[0].CriteriaID)
	assert.True(t, results[0].Passed)
}

func TestServiceCustomEngineOperator(t *testing.T) {
	engine := NewEngine()
	engine.RegisterOperator("always", func(actual, expected Value) (bool, error) {
		return true, nil
	})
	svc := NewServiceWithEngine(engine, NewInMemoryStore(), NewInMemoryCache(DefaultCacheConfig()))

	c := &Criteria{
		ID:        "custom",
		Threshold: 50,
		Method:    MethodAverage,
		Active:    true,
		Rules: []Rule{
			{ID: "r1", Field: "anything", Op: "always", Value: "ignored", Weight: 1, Active: true},
		},
	}
	require.NoError(t, svc.Add(c))

	result, err := svc.Evaluate("custom", map[string]any{"anything": 1})
	require.NoError(t, err)
	assert.True(t, result.Passed)
}
