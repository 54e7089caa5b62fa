package fed

import "fedbot/internal/storage"

// ActionKind names a federated action. The string values appear verbatim in
// reports ("FBanned ...", "Un-FBanned ...").
type ActionKind string

const (
	ActionBan   ActionKind = "FBan"
	ActionUnban ActionKind = "Un-FBan"
)

// Verb returns the past-tense report form, e.g. "FBanned".
func (k ActionKind) Verb() string { return string(k) + "ned" }

// Request is one resolved federated action: who, why, and the evidence.
// Built from the triggering message, consumed by one broadcast, discarded.
type Request struct {
	TargetID      int64
	TargetMention string // HTML mention, already escaped
	Reason        string
	Action        ActionKind
	ProofLink     string
}

type Status string

const (
	StatusAcked    Status = "acknowledged"
	StatusTimedOut Status = "timed_out"
	StatusErrored  Status = "errored"
)

// Outcome is the result of addressing a single federation during one
// broadcast. Never persisted.
type Outcome struct {
	Target storage.Federation
	Status Status
	Detail string // failure detail for StatusErrored
}

func (o Outcome) Failed() bool { return o.Status != StatusAcked }
