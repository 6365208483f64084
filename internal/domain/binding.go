package domain

// Binding is a resolved link from a declared target id to a canonical
// entity in the registry.
type Binding struct {
	Scope       DeclaredScope `json:"scope"`
	TargetID    string        `json:"target_id"`
	CanonicalID string        `json:"canonical_id"`
}

type BindingResolution struct {
	Scope      DeclaredScope `json:"scope"`
	Requested  []string      `json:"requested"`
	Resolved   []Binding     `json:"resolved"`
	Unresolved []string      `json:"unresolved"`
}

// QuarantineInput is evaluated by the quarantine policy at seal time.
type QuarantineInput struct {
	Method      IngestionMethod   `json:"ingestion_method"`
	Declaration Declaration       `json:"declaration"`
	Binding     BindingResolution `json:"binding"`
}

type QuarantineDecision struct {
	Quarantine bool     `json:"quarantine"`
	Reasons    []string `json:"reasons,omitempty"`
	PolicyHash string   `json:"policy_hash,omitempty"`
}
