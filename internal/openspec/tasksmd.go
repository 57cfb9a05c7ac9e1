package openspec

import (
	"regexp"
	"strings"
)

// ParsedTask is one task entry from a tasks.md plan document.
type ParsedTask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Deps        []string `json:"deps"`
	Phase       string   `json:"phase"`
}

var (
	phasePattern = regexp.MustCompile(`^##\s+Phase\s+\d+[:\s]+(.+)$`)
	taskPattern  = regexp.MustCompile(`^###\s+(T\d+)[:\s]+(.+)$`)
	depsPattern  = regexp.MustCompile(`(?i)\*\*Deps:\*\*\s*(.+)`)
	depRefOK     = regexp.MustCompile(`(?i)^T\d+$`)
)

// ParseTasks parses a tasks.md document into its task entries. Tasks are
// grouped under "## Phase N: name" headings and declared as "### T<n>:
// title" blocks, each carrying a "**Deps:**" line with comma-separated
// task refs or "none".
func ParseTasks(content string) []ParsedTask {
	var tasks []ParsedTask
	currentPhase := "Phase 1"

	var current *ParsedTask
	var descLines []string

	flush := func() {
		if current != nil {
			current.Description = strings.TrimSpace(strings.Join(descLines, "\n"))
			tasks = append(tasks, *current)
		}
		current = nil
		descLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if m := phasePattern.FindStringSubmatch(line); m != nil {
			flush()
			currentPhase = strings.TrimSpace(m[1])
			continue
		}
		if m := taskPattern.FindStringSubmatch(line); m != nil {
			flush()
			current = &ParsedTask{
				ID:    m[1],
				Title: strings.TrimSpace(m[2]),
				Deps:  []string{},
				Phase: currentPhase,
			}
			continue
		}
		if current != nil && strings.Contains(line, "**Deps:**") {
			if m := depsPattern.FindStringSubmatch(line); m != nil {
				current.Deps = parseDeps(m[1])
			}
			continue
		}
		if current != nil && strings.TrimSpace(line) != "" {
			descLines = append(descLines, line)
		}
	}
	flush()
	return tasks
}

func parseDeps(s string) []string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "none") {
		return []string{}
	}
	deps := []string{}
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
		if depRefOK.MatchString(part) {
			deps = append(deps, strings.ToUpper(part))
		}
	}
	return deps
}
