// Package shellquote builds safe shell command lines.
//
// Arguments are quoted with mvdan.cc/sh/v3/syntax (the shfmt quoting rules),
// so a command assembled from user-provided values such as task titles or
// change ids stays a single command when handed to a shell or logged for
// copy-paste.
package shellquote

import (
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Quote returns arg quoted for Bash. Values that cannot be represented
// (e.g. containing NUL) are reduced to their printable prefix first.
func Quote(arg string) string {
	q, err := syntax.Quote(arg, syntax.LangBash)
	if err != nil {
		// syntax.Quote only fails on control bytes; strip and retry.
		cleaned := strings.Map(func(r rune) rune {
			if r == 0 || r == '\r' || r == '\n' {
				return ' '
			}
			return r
		}, arg)
		q, err = syntax.Quote(cleaned, syntax.LangBash)
		if err != nil {
			return "''"
		}
	}
	return q
}

// Join quotes every argument and joins them into one command line.
func Join(args ...string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		quoted = append(quoted, Quote(a))
	}
	return strings.Join(quoted, " ")
}

// IsSingleCommand reports whether input parses as exactly one simple shell
// command (no pipes, chains, redirects or substitutions).
func IsSingleCommand(input string) bool {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(input), "")
	if err != nil {
		return false
	}
	if len(prog.Stmts) != 1 {
		return false
	}
	stmt := prog.Stmts[0]
	if stmt.Negated || stmt.Background || len(stmt.Redirs) > 0 {
		return false
	}
	call, ok := stmt.Cmd.(*syntax.CallExpr)
	if !ok {
		return false
	}
	for _, word := range call.Args {
		for _, part := range word.Parts {
			switch part.(type) {
			case *syntax.CmdSubst, *syntax.ProcSubst:
				return false
			}
		}
	}
	return true
}
