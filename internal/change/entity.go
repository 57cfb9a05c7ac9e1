package change

import (
	"strings"
	"time"
)

type Status string

const (
	StatusActive       Status = "active"
	StatusImplementing Status = "implementing"
	StatusInReview     Status = "in-review"
	StatusVerified     Status = "verified"
	StatusArchived     Status = "archived"
)

type ArtifactType string

const (
	ArtifactProposal ArtifactType = "proposal"
	ArtifactSpecs    ArtifactType = "specs"
	ArtifactDesign   ArtifactType = "design"
	ArtifactTasks    ArtifactType = "tasks"
)

type Artifact struct {
	Type        ArtifactType `json:"type"`
	Path        string       `json:"path"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	LastUpdated time.Time    `json:"lastUpdated"`
	Stale       bool         `json:"stale"`
}

type Change struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      Status      `json:"status"`
	Artifacts   []*Artifact `json:"artifacts"`
	TaskIDs     []string    `json:"taskIds"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Artifact returns the change's artifact of the given type, or nil.
func (c *Change) Artifact(t ArtifactType) *Artifact {
	for _, a := range c.Artifacts {
		if a.Type == t {
			return a
		}
	}
	return nil
}

// InferStatus derives a change's status from which artifacts exist. The
// status is never stored: tasks or specs imply implementing, anything
// less is active.
func InferStatus(artifacts []*Artifact) Status {
	has := func(t ArtifactType) bool {
		for _, a := range artifacts {
			if a.Type == t {
				return true
			}
		}
		return false
	}
	if has(ArtifactTasks) || has(ArtifactSpecs) {
		return StatusImplementing
	}
	return StatusActive
}

// MarkStale sets the stale flag on the tasks artifact when the proposal
// was modified after it. A stale plan is a heuristic signal that tasks
// were not regenerated since the proposal changed, not a guarantee.
func MarkStale(artifacts []*Artifact) {
	var proposal, tasks *Artifact
	for _, a := range artifacts {
		switch a.Type {
		case ArtifactProposal:
			proposal = a
		case ArtifactTasks:
			tasks = a
		}
	}
	if proposal != nil && tasks != nil {
		tasks.Stale = proposal.LastUpdated.After(tasks.LastUpdated)
	}
}

// ExtractTitle returns the text of the first Markdown heading, or "" if
// the document has none.
func ExtractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			return strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		}
	}
	return ""
}

// ExtractDescription returns the first non-heading paragraph of a
// Markdown document, collapsed to a single line.
func ExtractDescription(content string) string {
	var para []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(para) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			if len(para) > 0 {
				break
			}
			continue
		}
		para = append(para, trimmed)
	}
	return strings.Join(para, " ")
}

const maxIDLength = 50

// SanitizeID turns an arbitrary display name into a directory-safe
// change id: lowercase, runs of non-alphanumerics collapsed to single
// hyphens, trimmed, capped at 50 characters.
func SanitizeID(name string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	id := strings.Trim(b.String(), "-")
	if len(id) > maxIDLength {
		id = strings.Trim(id[:maxIDLength], "-")
	}
	return id
}
