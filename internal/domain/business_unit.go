package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Associate role keys with derived meaning.
const (
	RoleAdmin     = "admin"
	RoleBuyer     = "buyer"
	RoleSuperUser = "superuser"
)

// FieldWorkflows is the business unit custom field holding serialized workflow rules.
const FieldWorkflows = "workflows"

type Associate struct {
	CustomerID string   `json:"customerId"`
	Roles      []string `json:"roles"`
}

// HasRole reports whether the associate holds the role key.
func (a Associate) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// BusinessUnit is a node of the company / division tree.
type BusinessUnit struct {
	ID              string       `json:"id"`
	ProjectID       string       `json:"-"`
	Version         int          `json:"version"`
	Key             string       `json:"key"`
	Name            string       `json:"name"`
	UnitType        string       `json:"unitType"`
	ParentUnitKey   string       `json:"parentUnitKey,omitempty"`
	TopLevelUnitKey string       `json:"topLevelUnitKey"`
	Associates      []Associate  `json:"associates"`
	StoreKeys       []string     `json:"storeKeys"`
	Custom          CustomFields `json:"custom,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
}

// IsTopLevel reports whether the unit is the root of its tree.
func (b BusinessUnit) IsTopLevel() bool {
	return b.ParentUnitKey == "" || b.Key == b.TopLevelUnitKey
}

// Validate checks that every non top-level unit has exactly one parent.
func (b BusinessUnit) Validate() error {
	if b.Key == "" {
		return NewValidation("key", "business unit key required")
	}
	if b.TopLevelUnitKey == "" {
		return NewValidation("topLevelUnitKey", "top level unit key required")
	}
	if b.Key != b.TopLevelUnitKey && b.ParentUnitKey == "" {
		return NewValidation("parentUnitKey", fmt.Sprintf("business unit %q is not top level and has no parent", b.Key))
	}
	if b.Key == b.TopLevelUnitKey && b.ParentUnitKey != "" {
		return NewValidation("parentUnitKey", fmt.Sprintf("top level business unit %q cannot have a parent", b.Key))
	}
	return nil
}

// Associate returns the membership record for the account.
func (b BusinessUnit) Associate(customerID string) (Associate, bool) {
	for _, a := range b.Associates {
		if a.CustomerID == customerID {
			return a, true
		}
	}
	return Associate{}, false
}

// IsAdmin is derived from the associate's roles.
func (b BusinessUnit) IsAdmin(customerID string) bool {
	a, ok := b.Associate(customerID)
	return ok && a.HasRole(RoleAdmin)
}

// IsRootAdmin reports admin status on a top level unit.
func (b BusinessUnit) IsRootAdmin(customerID string) bool {
	return b.IsTopLevel() && b.IsAdmin(customerID)
}

// HasStore reports whether the unit is tied to the store key.
func (b BusinessUnit) HasStore(storeKey string) bool {
	for _, k := range b.StoreKeys {
		if k == storeKey {
			return true
		}
	}
	return false
}

// WorkflowRule is one named conditional expression evaluated against a cart.
type WorkflowRule struct {
	Name       string          `json:"name"`
	Expression json.RawMessage `json:"expression"`
}

// WorkflowRules decodes the stored rule set. Rules may be stored as a JSON
// string or as an already decoded list.
func (b BusinessUnit) WorkflowRules() ([]WorkflowRule, error) {
	raw, ok := b.Custom[FieldWorkflows]
	if !ok || raw == nil {
		return nil, nil
	}
	var payload []byte
	switch v := raw.(type) {
	case string:
		if v == "" {
			return nil, nil
		}
		payload = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		payload = encoded
	}
	var rules []WorkflowRule
	if err := json.Unmarshal(payload, &rules); err != nil {
		return nil, fmt.Errorf("decode workflow rules for %s: %w", b.Key, err)
	}
	return rules, nil
}

// Store is a sales channel tied to business units.
type Store struct {
	ID                   string    `json:"id"`
	ProjectID            string    `json:"-"`
	Key                  string    `json:"key"`
	Name                 string    `json:"name"`
	IsPreBuy             bool      `json:"isPreBuy"`
	DistributionChannels []string  `json:"distributionChannels"`
	Countries            []string  `json:"countries,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// DefaultDistributionChannel returns the first channel or fallback.
func (s Store) DefaultDistributionChannel(fallback string) string {
	if len(s.DistributionChannels) > 0 && s.DistributionChannels[0] != "" {
		return s.DistributionChannels[0]
	}
	return fallback
}
