package event

import (
	"time"

	"github.com/oklog/ulid/v2"
)

type Type string

const (
	TypeTaskCreated       Type = "task.created"
	TypeTaskUpdated       Type = "task.updated"
	TypeTaskCompleted     Type = "task.completed"
	TypeAgentConnected    Type = "agent.connected"
	TypeAgentDisconnected Type = "agent.disconnected"
	TypeCommit            Type = "commit"
	TypeChangeCreated     Type = "change.created"
	TypeChangeUpdated     Type = "change.updated"
	TypeRefresh           Type = "refresh"
)

type Event struct {
	ID        string            `json:"id"`
	Type      Type              `json:"type"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	AgentID   string            `json:"agentId,omitempty"`
	TaskID    string            `json:"taskId,omitempty"`
	ChangeID  string            `json:"changeId,omitempty"`
}

// New builds an event with a fresh ulid and the current time.
func New(t Type, payload map[string]string) *Event {
	return &Event{
		ID:        ulid.Make().String(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// NewCommit builds the event view of one version-control commit. The id
// is derived from the commit hash so re-reading history yields the same
// ids, not fresh ones.
func NewCommit(hash, subject, author string, at time.Time, agentID string) *Event {
	short := hash
	if len(short) > 7 {
		short = short[:7]
	}
	return &Event{
		ID:   "git-" + short,
		Type: TypeCommit,
		Payload: map[string]string{
			"hash":    hash,
			"subject": subject,
			"author":  author,
		},
		Timestamp: at,
		AgentID:   agentID,
	}
}
