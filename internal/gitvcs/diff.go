package gitvcs

import (
	"regexp"
	"strings"
)

type DiffLineType string

const (
	DiffAdd     DiffLineType = "add"
	DiffRemove  DiffLineType = "remove"
	DiffContext DiffLineType = "context"
)

type DiffLine struct {
	Type    DiffLineType `json:"type"`
	Content string       `json:"content"`
}

type DiffHunk struct {
	Header string     `json:"header"`
	Lines  []DiffLine `json:"lines"`
}

type DiffFile struct {
	Path      string     `json:"path"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Hunks     []DiffHunk `json:"hunks"`
}

var diffHeaderPattern = regexp.MustCompile(`a/(.+)\s+b/(.+)`)

// ParseDiff splits raw unified diff output into per-file hunks with
// addition and deletion counts.
func ParseDiff(raw string) []DiffFile {
	var files []DiffFile
	for _, block := range strings.Split(raw, "diff --git ") {
		if strings.TrimSpace(block) == "" {
			continue
		}
		lines := strings.Split(block, "\n")
		m := diffHeaderPattern.FindStringSubmatch(lines[0])
		if m == nil {
			continue
		}
		file := DiffFile{Path: m[2]}

		var hunk *DiffHunk
		flush := func() {
			if hunk != nil {
				file.Hunks = append(file.Hunks, *hunk)
			}
			hunk = nil
		}
		for _, line := range lines {
			switch {
			case strings.HasPrefix(line, "@@"):
				flush()
				hunk = &DiffHunk{Header: line}
			case hunk == nil:
				// Header lines before the first hunk.
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				file.Additions++
				hunk.Lines = append(hunk.Lines, DiffLine{Type: DiffAdd, Content: line[1:]})
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				file.Deletions++
				hunk.Lines = append(hunk.Lines, DiffLine{Type: DiffRemove, Content: line[1:]})
			case strings.HasPrefix(line, " "):
				hunk.Lines = append(hunk.Lines, DiffLine{Type: DiffContext, Content: line[1:]})
			}
		}
		flush()
		files = append(files, file)
	}
	return files
}
