//go:build integration
// +build integration

package criteria_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/tomharte/criteria/criteria"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "criteria_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=criteria_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		migrationSQL, err = os.ReadFile(filepath.Join("migrations", "000001_initial_schema.up.sql"))
		if err != nil {
			t.Fatalf("Failed to read migration file: %v", err)
		}
	}

	_, err = db.Exec(string(migrationSQL))
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func sampleCriteria(id string) *criteria.Criteria {
	return &criteria.Criteria{
		ID:        id,
		Name:      "Loan Approval",
		Threshold: 65,
		Method:    criteria.MethodWeighted,
		Active:    true,
		Rules: []criteria.Rule{
			{ID: "r-income", Field: "income", Op: criteria.OpGreaterEqual, Value: 3000, Weight: 40, Order: 1, Active: true},
			{ID: "r-credit", Field: "credit_score", Op: criteria.OpGreaterEqual, Value: 650, Weight: 60, Order: 2, Active: true},
		},
	}
}

func TestPostgresStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := criteria.NewPostgresStore(db)

	id := uuid.New().String()
	c := sampleCriteria(id)
	if err := store.Add(c); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	// Definitions round-trip through the JSONB column intact.
	retrieved, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if retrieved.Name != c.Name {
		t.Errorf("Name = %s, want %s", retrieved.Name, c.Name)
	}
	if retrieved.Threshold != 65 {
		t.Errorf("Threshold = %v, want 65", retrieved.Threshold)
	}
	if len(retrieved.Rules) != 2 {
		t.Fatalf("Rules = %d, want 2", len(retrieved.Rules))
	}
	if retrieved.Rules[0].Op != criteria.OpGreaterEqual {
		t.Errorf("Rules[0].Op = %s, want gte", retrieved.Rules[0].Op)
	}
	if retrieved.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set by Add()")
	}

	// Duplicate IDs are rejected
	if err := store.Add(sampleCriteria(id)); err == nil {
		t.Error("Add() with duplicate ID should return error")
	}

	// Update
	updated := sampleCriteria(id)
	updated.Name = "Stricter Loan Approval"
	updated.Threshold = 80
	if err := store.Update(updated); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	retrieved, err = store.Get(id)
	if err != nil {
		t.Fatalf("Get() after Update() failed: %v", err)
	}
	if retrieved.Name != "Stricter Loan Approval" {
		t.Errorf("Name = %s after update", retrieved.Name)
	}
	if retrieved.Threshold != 80 {
		t.Errorf("Threshold = %v, want 80", retrieved.Threshold)
	}

	// Delete
	if err := store.Delete(id); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := store.Get(id); err == nil {
		t.Error("Get() after Delete() should return error")
	}
	if err := store.Delete(id); err == nil {
		t.Error("Delete() of missing criteria should return error")
	}
}

func TestPostgresStore_ListActive(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := criteria.NewPostgresStore(db)

	activeID := uuid.New().String()
	inactiveID := uuid.New().String()

	if err := store.Add(sampleCriteria(activeID)); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	inactive := sampleCriteria(inactiveID)
	inactive.Active = false
	if err := store.Add(inactive); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	list, err := store.ListActive()
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListActive() returned %d criteria, want 1", len(list))
	}
	if list[0].ID != activeID {
		t.Errorf("ListActive() returned %s, want %s", list[0].ID, activeID)
	}
}

func TestPostgresStore_GroupsRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := criteria.NewPostgresStore(db)

	id := uuid.New().String()
	c := &criteria.Criteria{
		ID:        id,
		Name:      "Fraud Gate",
		Threshold: 100,
		Method:    criteria.MethodPassFail,
		Active:    true,
		Groups: []criteria.RuleGroup{{
			ID:         "signals",
			Combinator: criteria.CombinatorExpression,
			Expression: "(velocity AND country) OR NOT device",
			Weight:     1,
			Rules: []criteria.Rule{
				{ID: "g1", Alias: "velocity", Field: "tx_velocity", Op: criteria.OpLessEqual, Value: 10, Weight: 1, Active: true},
				{ID: "g2", Alias: "country", Field: "country", Op: criteria.OpIn, Value: []any{"US", "CA"}, Weight: 1, Active: true},
				{ID: "g3", Alias: "device", Field: "device_known", Op: criteria.OpEqual, Value: true, Weight: 1, Active: true},
			},
		}},
	}
	if err := store.Add(c); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	retrieved, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(retrieved.Groups) != 1 {
		t.Fatalf("Groups = %d, want 1", len(retrieved.Groups))
	}
	g := retrieved.Groups[0]
	if g.Expression != c.Groups[0].Expression {
		t.Errorf("Expression = %q, want %q", g.Expression, c.Groups[0].Expression)
	}
	if len(g.Rules) != 3 {
		t.Fatalf("group Rules = %d, want 3", len(g.Rules))
	}

	// The stored definition evaluates end to end.
	engine := criteria.NewEngine()
	result, err := engine.Evaluate(retrieved, map[string]any{
		"tx_velocity":  3,
		"country":      "US",
		"device_known": true,
	})
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if !result.Passed {
		t.Error("expected stored criteria to pass")
	}
}
