package change

import (
	"testing"
	"time"
)

func TestInferStatus(t *testing.T) {
	cases := []struct {
		name      string
		artifacts []*Artifact
		want      Status
	}{
		{"none", nil, StatusActive},
		{"proposal only", []*Artifact{{Type: ArtifactProposal}}, StatusActive},
		{"tasks", []*Artifact{{Type: ArtifactProposal}, {Type: ArtifactTasks}}, StatusImplementing},
		{"specs no tasks", []*Artifact{{Type: ArtifactSpecs}}, StatusImplementing},
		{"design only", []*Artifact{{Type: ArtifactDesign}}, StatusActive},
	}
	for _, c := range cases {
		if got := InferStatus(c.artifacts); got != c.want {
			t.Errorf("%s: InferStatus = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestMarkStale(t *testing.T) {
	now := time.Now()
	proposal := &Artifact{Type: ArtifactProposal, LastUpdated: now}
	tasks := &Artifact{Type: ArtifactTasks, LastUpdated: now.Add(-time.Hour)}
	MarkStale([]*Artifact{proposal, tasks})
	if !tasks.Stale {
		t.Error("tasks older than proposal should be stale")
	}

	tasks.LastUpdated = now.Add(time.Hour)
	MarkStale([]*Artifact{proposal, tasks})
	if tasks.Stale {
		t.Error("tasks newer than proposal should not be stale")
	}

	// Equal timestamps are not stale.
	tasks.LastUpdated = now
	MarkStale([]*Artifact{proposal, tasks})
	if tasks.Stale {
		t.Error("equal timestamps should not be stale")
	}
}

func TestMarkStaleMissingArtifact(t *testing.T) {
	tasks := &Artifact{Type: ArtifactTasks}
	MarkStale([]*Artifact{tasks})
	if tasks.Stale {
		t.Error("no proposal means never stale")
	}
}

func TestExtractTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"# Add Dark Mode\n\nBody text", "Add Dark Mode"},
		{"\n\n## Sub Heading\ntext", "Sub Heading"},
		{"no heading here", ""},
		{"", ""},
		{"   # Indented Heading", "Indented Heading"},
	}
	for _, c := range cases {
		if got := ExtractTitle(c.in); got != c.want {
			t.Errorf("ExtractTitle(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestExtractDescription(t *testing.T) {
	doc := "# Title\n\nFirst paragraph line one.\nLine two.\n\nSecond paragraph."
	want := "First paragraph line one. Line two."
	if got := ExtractDescription(doc); got != want {
		t.Errorf("ExtractDescription = %q, want %q", got, want)
	}
	if got := ExtractDescription("# Only Heading"); got != "" {
		t.Errorf("heading-only doc should yield empty description, got %q", got)
	}
}

func TestSanitizeID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Add Dark Mode", "add-dark-mode"},
		{"  weird!!chars///here  ", "weird-chars-here"},
		{"already-fine", "already-fine"},
		{"UPPER_case", "upper-case"},
	}
	for _, c := range cases {
		if got := SanitizeID(c.in); got != c.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	long := SanitizeID("this is a very long change name that keeps going and going and going forever")
	if len(long) > 50 {
		t.Errorf("sanitized id exceeds 50 chars: %q (%d)", long, len(long))
	}
}

func TestChangeArtifactLookup(t *testing.T) {
	c := &Change{Artifacts: []*Artifact{{Type: ArtifactProposal, Title: "P"}}}
	if a := c.Artifact(ArtifactProposal); a == nil || a.Title != "P" {
		t.Error("expected proposal artifact")
	}
	if a := c.Artifact(ArtifactTasks); a != nil {
		t.Error("expected nil for missing artifact type")
	}
}
