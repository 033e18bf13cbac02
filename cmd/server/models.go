package main

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tomharte/criteria/criteria"
)

// validate checks request payloads before they reach the service layer.
var validate = validator.New()

// EvaluateRequest is the request body for a single evaluation. Exactly one
// of CriteriaID or Criteria must be supplied: stored criteria are looked up
// by ID, inline criteria are evaluated as-is without being persisted.
type EvaluateRequest struct {
	CriteriaID string             `json:"criteria_id,omitempty"`
	Criteria   *criteria.Criteria `json:"criteria,omitempty"`
	Data       map[string]any     `json:"data" validate:"required"`
}

// BatchEvaluateRequest fans one criteria out over many entity snapshots.
type BatchEvaluateRequest struct {
	CriteriaID string           `json:"criteria_id" validate:"required"`
	Entities   []map[string]any `json:"entities" validate:"required,min=1,max=1000"`
}

// BatchEntityResult pairs one entity's result with its request position.
type BatchEntityResult struct {
	Index  int                        `json:"index"`
	Result *criteria.EvaluationResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

// RuleRequest is a rule in a create or update payload. Weight and Active
// are pointers so an omitted field is distinguishable from an explicit
// zero; omissions take the documented defaults (weight 1, active true)
// in toRule.
type RuleRequest struct {
	ID     string            `json:"id,omitempty"`
	Alias  string            `json:"alias,omitempty"`
	Field  string            `json:"field"`
	Op     criteria.Operator `json:"operator"`
	Value  any               `json:"value,omitempty"`
	Weight *int              `json:"weight,omitempty"`
	Order  int               `json:"order,omitempty"`
	Active *bool             `json:"active,omitempty"`
	Type   criteria.TypeHint `json:"type,omitempty"`
}

func (req RuleRequest) toRule() criteria.Rule {
	r := criteria.Rule{
		ID:     req.ID,
		Alias:  req.Alias,
		Field:  req.Field,
		Op:     req.Op,
		Value:  req.Value,
		Weight: 1,
		Order:  req.Order,
		Active: true,
		Type:   req.Type,
	}
	if req.Weight != nil {
		r.Weight = *req.Weight
	}
	if req.Active != nil {
		r.Active = *req.Active
	}
	return r
}

// RuleGroupRequest is a rule group in a create or update payload. An
// omitted group weight defaults to 1.
type RuleGroupRequest struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name,omitempty"`
	Combinator  criteria.Combinator `json:"combinator"`
	Rules       []RuleRequest       `json:"rules"`
	MinRequired int                 `json:"min_required,omitempty"`
	Expression  string              `json:"expression,omitempty"`
	Weight      *float64            `json:"weight,omitempty"`
}

func (req RuleGroupRequest) toGroup() criteria.RuleGroup {
	g := criteria.RuleGroup{
		ID:          req.ID,
		Name:        req.Name,
		Combinator:  req.Combinator,
		MinRequired: req.MinRequired,
		Expression:  req.Expression,
		Weight:      1,
	}
	if req.Weight != nil {
		g.Weight = *req.Weight
	}
	for _, rr := range req.Rules {
		g.Rules = append(g.Rules, rr.toRule())
	}
	return g
}

// CreateCriteriaRequest is the request body for creating a criteria
// definition. Omitted thresholds default to 65 and omitted methods to
// weighted before validation.
type CreateCriteriaRequest struct {
	Name      string                 `json:"name" validate:"required,min=1,max=200"`
	Threshold *float64               `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	Method    criteria.ScoringMethod `json:"method,omitempty"`
	Rules     []RuleRequest          `json:"rules,omitempty"`
	Groups    []RuleGroupRequest     `json:"groups,omitempty"`
	Active    *bool                  `json:"active,omitempty"`
}

// UpdateCriteriaRequest is the request body for replacing a criteria
// definition.
type UpdateCriteriaRequest struct {
	Name      string                 `json:"name" validate:"required,min=1,max=200"`
	Threshold *float64               `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	Method    criteria.ScoringMethod `json:"method,omitempty"`
	Rules     []RuleRequest          `json:"rules,omitempty"`
	Groups    []RuleGroupRequest     `json:"groups,omitempty"`
	Active    *bool                  `json:"active,omitempty"`
}

// CriteriaResponse represents a criteria in API responses
type CriteriaResponse struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Threshold float64                `json:"threshold"`
	Method    criteria.ScoringMethod `json:"method"`
	Rules     []criteria.Rule        `json:"rules,omitempty"`
	Groups    []criteria.RuleGroup   `json:"groups,omitempty"`
	Active    bool                   `json:"active"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func toCriteriaResponse(c *criteria.Criteria) CriteriaResponse {
	return CriteriaResponse{
		ID:        c.ID,
		Name:      c.Name,
		Threshold: c.Threshold,
		Method:    c.Method,
		Rules:     c.Rules,
		Groups:    c.Groups,
		Active:    c.Active,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// toCriteria converts a create request into a definition, applying the
// documented defaults at this boundary so the engine never defaults
// internally.
func (req *CreateCriteriaRequest) toCriteria(id string) *criteria.Criteria {
	c := &criteria.Criteria{
		ID:        id,
		Name:      req.Name,
		Threshold: criteria.DefaultThreshold,
		Method:    req.Method,
		Active:    true,
	}
	if req.Threshold != nil {
		c.Threshold = *req.Threshold
	}
	if req.Method == "" {
		c.Method = criteria.MethodWeighted
	}
	if req.Active != nil {
		c.Active = *req.Active
	}
	for _, rr := range req.Rules {
		c.Rules = append(c.Rules, rr.toRule())
	}
	for _, gr := range req.Groups {
		c.Groups = append(c.Groups, gr.toGroup())
	}
	return c
}

func (req *UpdateCriteriaRequest) toCriteria(id string) *criteria.Criteria {
	create := CreateCriteriaRequest(*req)
	return create.toCriteria(id)
}
