// Package model defines the core agent data types.
package model

// Role identifies the speaker of a logged message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRoles are the allowed message roles.
var ValidRoles = map[Role]bool{
	RoleSystem:    true,
	RoleUser:      true,
	RoleAssistant: true,
}

// Message is one entry in the durable log. Messages are immutable once
// written; insertion order (by ID) is the only ordering guarantee.
type Message struct {
	ID       int64          `json:"id"`
	Role     Role           `json:"role"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Outcome classifies what happened to one loop step.
type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeReverted  Outcome = "reverted"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeErrored   Outcome = "errored"
)

// Metadata keys written by the orchestrator. Readers of the log must
// tolerate unknown and missing keys.
const (
	MetaType    = "type"
	MetaRunID   = "run_id"
	MetaStep    = "step"
	MetaOutcome = "outcome"
	MetaPath    = "path"
)

// Values for the MetaType key.
const (
	TypeGoal       = "goal"
	TypeProposal   = "proposal"
	TypeTestResult = "test_result"
	TypeStep       = "step"
	TypeSummary    = "summary"
	TypeSeed       = "seed"
)
