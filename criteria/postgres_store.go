package criteria

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store backed by PostgreSQL. Definitions are
// serialized as a single JSONB document per row; the engine resolves them
// fully on load, so nothing in the definition is lazy.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed criteria store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// definitionDoc is the JSONB payload. Timestamps and the active flag live
// in their own columns; everything else rides in the document.
type definitionDoc struct {
	Name      string        `json:"name"`
	Threshold float64       `json:"threshold"`
	Method    ScoringMethod `json:"method"`
	Rules     []Rule        `json:"rules,omitempty"`
	Groups    []RuleGroup   `json:"groups,omitempty"`
}

func marshalDefinition(c *Criteria) ([]byte, error) {
	doc := definitionDoc{
		Name:      c.Name,
		Threshold: c.Threshold,
		Method:    c.Method,
		Rules:     c.Rules,
		Groups:    c.Groups,
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal criteria definition: %w", err)
	}
	return payload, nil
}

func unmarshalDefinition(c *Criteria, payload []byte) error {
	var doc definitionDoc
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal criteria definition: %w", err)
	}
	c.Name = doc.Name
	c.Threshold = doc.Threshold
	c.Method = doc.Method
	c.Rules = doc.Rules
	c.Groups = doc.Groups
	return nil
}

// Add inserts a new criteria into the database
func (s *PostgresStore) Add(c *Criteria) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM criteria WHERE id = $1)
	`, c.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check criteria existence: %w", err)
	}
	if exists {
		return fmt.Errorf("criteria with ID %s already exists", c.ID)
	}

	payload, err := marshalDefinition(c)
	if err != nil {
		return err
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO criteria (id, name, definition, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.Name, payload, c.Active, c.CreatedAt, c.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert criteria: %w", err)
	}

	return nil
}

// Get retrieves a criteria by ID
func (s *PostgresStore) Get(id string) (*Criteria, error) {
	var c Criteria
	var payload []byte
	err := s.db.QueryRow(`
		SELECT id, definition, active, created_at, updated_at
		FROM criteria
		WHERE id = $1
	`, id).Scan(&c.ID, &payload, &c.Active, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("criteria %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get criteria: %w", err)
	}

	if err := unmarshalDefinition(&c, payload); err != nil {
		return nil, err
	}

	return &c, nil
}

// ListActive returns all active criteria
func (s *PostgresStore) ListActive() ([]*Criteria, error) {
	rows, err := s.db.Query(`
		SELECT id, definition, active, created_at, updated_at
		FROM criteria
		WHERE active = true
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active criteria: %w", err)
	}
	defer rows.Close()

	var list []*Criteria
	for rows.Next() {
		var c Criteria
		var payload []byte
		if err := rows.Scan(&c.ID, &payload, &c.Active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan criteria: %w", err)
		}
		if err := unmarshalDefinition(&c, payload); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating criteria: %w", err)
	}

	return list, nil
}

// Update modifies an existing criteria
func (s *PostgresStore) Update(c *Criteria) error {
	existing, err := s.Get(c.ID)
	if err != nil {
		return err
	}

	payload, err := marshalDefinition(c)
	if err != nil {
		return err
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE criteria
		SET name = $1, definition = $2, active = $3, updated_at = $4
		WHERE id = $5
	`, c.Name, payload, c.Active, c.UpdatedAt, c.ID)

	if err != nil {
		return fmt.Errorf("failed to update criteria: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("criteria %s not found", c.ID)
	}

	return nil
}

// Delete removes a criteria from the database
func (s *PostgresStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM criteria
		WHERE id = $1
	`, id)

	if err != nil {
		return fmt.Errorf("failed to delete criteria: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("criteria %s not found", id)
	}

	return nil
}
