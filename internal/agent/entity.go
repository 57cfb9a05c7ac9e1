package agent

import "github.com/pyros-projects/clawde/internal/project"

type Status string

const (
	StatusIdle          Status = "idle"
	StatusWorking       Status = "working"
	StatusBlocked       Status = "blocked"
	StatusWaitingReview Status = "waiting-review"
)

type ConnectionStatus string

const (
	ConnDisconnected ConnectionStatus = "disconnected"
	ConnConnecting   ConnectionStatus = "connecting"
	ConnConnected    ConnectionStatus = "connected"
	ConnError        ConnectionStatus = "error"
)

// Agent is the snapshot view of one configured collaborator. Live status
// resets to idle/disconnected every time a snapshot is rebuilt; only the
// connection service tracks state across rebuilds.
type Agent struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Provider         string           `json:"provider"`
	Model            string           `json:"model"`
	Capabilities     []string         `json:"capabilities"`
	Status           Status           `json:"status"`
	ConnectionStatus ConnectionStatus `json:"connectionStatus"`
	CurrentTaskID    string           `json:"currentTaskId,omitempty"`
	Color            string           `json:"color"`
}

// FromConfig derives the agent view models from project configuration.
func FromConfig(configs []project.AgentConfig) []*Agent {
	agents := make([]*Agent, 0, len(configs))
	for _, c := range configs {
		agents = append(agents, &Agent{
			ID:               c.ID,
			Name:             c.Name,
			Provider:         c.Provider,
			Model:            c.Model,
			Capabilities:     c.Capabilities,
			Status:           StatusIdle,
			ConnectionStatus: ConnDisconnected,
			Color:            c.Color,
		})
	}
	return agents
}
