package criteria

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore is a read-only Store over a criteria-as-code YAML document.
// Mutations go through version control, not the API, so Add, Update and
// Delete are rejected.
type FileStore struct {
	criteria map[string]*Criteria
	order    []string
	mu       sync.RWMutex
}

// fileDoc is the YAML document layout. Optional fields are pointers so the
// loader can tell "omitted" from "zero" and apply the documented defaults:
// threshold 65, weight 1, active true.
type fileDoc struct {
	Criteria []fileCriteria `yaml:"criteria"`
}

type fileCriteria struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Threshold *float64      `yaml:"threshold"`
	Method    ScoringMethod `yaml:"method"`
	Rules     []fileRule    `yaml:"rules"`
	Groups    []fileGroup   `yaml:"groups"`
	Active    *bool         `yaml:"active"`
}

type fileRule struct {
	ID     string   `yaml:"id"`
	Alias  string   `yaml:"alias"`
	Field  string   `yaml:"field"`
	Op     Operator `yaml:"operator"`
	Value  any      `yaml:"value"`
	Weight *int     `yaml:"weight"`
	Order  int      `yaml:"order"`
	Active *bool    `yaml:"active"`
	Type   TypeHint `yaml:"type"`
}

type fileGroup struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Combinator  Combinator `yaml:"combinator"`
	Rules       []fileRule `yaml:"rules"`
	MinRequired int        `yaml:"min_required"`
	Expression  string     `yaml:"expression"`
	Weight      *float64   `yaml:"weight"`
}

// NewFileStore loads a YAML criteria document from path.
func NewFileStore(path string) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse criteria file %s: %w", path, err)
	}
	if len(doc.Criteria) == 0 {
		return nil, fmt.Errorf("criteria file %s defines no criteria", path)
	}

	now := time.Now()
	fs := &FileStore{criteria: make(map[string]*Criteria, len(doc.Criteria))}
	for i, fc := range doc.Criteria {
		if fc.ID == "" {
			return nil, fmt.Errorf("criteria file %s: entry %d has no id", path, i+1)
		}
		if _, dup := fs.criteria[fc.ID]; dup {
			return nil, fmt.Errorf("criteria file %s: duplicate criteria id %s", path, fc.ID)
		}

		c := &Criteria{
			ID:        fc.ID,
			Name:      fc.Name,
			Threshold: DefaultThreshold,
			Method:    fc.Method,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if fc.Threshold != nil {
			c.Threshold = *fc.Threshold
		}
		if fc.Active != nil {
			c.Active = *fc.Active
		}
		if fc.Method == "" {
			c.Method = MethodWeighted
		}
		for _, fr := range fc.Rules {
			c.Rules = append(c.Rules, fr.toRule())
		}
		for _, fg := range fc.Groups {
			g := RuleGroup{
				ID:          fg.ID,
				Name:        fg.Name,
				Combinator:  fg.Combinator,
				MinRequired: fg.MinRequired,
				Expression:  fg.Expression,
				Weight:      1,
			}
			if fg.Weight != nil {
				g.Weight = *fg.Weight
			}
			for _, fr := range fg.Rules {
				g.Rules = append(g.Rules, fr.toRule())
			}
			c.Groups = append(c.Groups, g)
		}

		fs.criteria[c.ID] = c
		fs.order = append(fs.order, c.ID)
	}

	return fs, nil
}

func (fr fileRule) toRule() Rule {
	r := Rule{
		ID:     fr.ID,
		Alias:  fr.Alias,
		Field:  fr.Field,
		Op:     fr.Op,
		Value:  fr.Value,
		Weight: 1,
		Order:  fr.Order,
		Active: true,
		Type:   fr.Type,
	}
	if fr.Weight != nil {
		r.Weight = *fr.Weight
	}
	if fr.Active != nil {
		r.Active = *fr.Active
	}
	return r
}

// Add is rejected: the file is the source of truth.
func (fs *FileStore) Add(*Criteria) error {
	return fmt.Errorf("file store is read-only")
}

// Get retrieves a criteria by ID
func (fs *FileStore) Get(id string) (*Criteria, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	c, exists := fs.criteria[id]
	if !exists {
		return nil, fmt.Errorf("criteria with ID %s not found", id)
	}
	return c, nil
}

// ListActive returns all active criteria in document order
func (fs *FileStore) ListActive() ([]*Criteria, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var active []*Criteria
	for _, id := range fs.order {
		if c := fs.criteria[id]; c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

// Update is rejected: the file is the source of truth.
func (fs *FileStore) Update(*Criteria) error {
	return fmt.Errorf("file store is read-only")
}

// Delete is rejected: the file is the source of truth.
func (fs *FileStore) Delete(string) error {
	return fmt.Errorf("file store is read-only")
}
