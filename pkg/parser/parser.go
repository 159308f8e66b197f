// Package parser recovers file proposals from raw model output. The output
// contract is a FILE: header line followed by the complete file content,
// repeated per file; anything outside recognized blocks is tolerated prose.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"siteforge/pkg/store"
)

// ErrMalformedOutput marks a whole-response parse failure: no file blocks
// were recognized, or a header had no content. Nothing from such a response
// is ever applied.
var ErrMalformedOutput = errors.New("malformed model output")

// ProposalKind distinguishes new files from modifications of existing ones.
type ProposalKind string

const (
	KindCreate ProposalKind = "create"
	KindUpdate ProposalKind = "update"
)

// Proposal is one parsed file block. Duplicate is set on every proposal
// whose path appears more than once in the response; duplicates are kept in
// order rather than merged so the caller can report each occurrence.
type Proposal struct {
	Path      string       `json:"path"`
	Content   string       `json:"content"`
	Language  string       `json:"language"`
	Kind      ProposalKind `json:"kind"`
	Duplicate bool         `json:"duplicate"`
}

// fileHeader matches a FILE: marker line. The path may be wrapped in
// backticks or quotes, which some models add despite instructions.
var fileHeader = regexp.MustCompile("(?m)^\\s*FILE:\\s*[`\"']?([^`\"'\\r\\n]+?)[`\"']?\\s*$")

// Parse segments raw model output into ordered proposals. activePaths is the
// set of paths that currently have an active version; it decides each
// proposal's kind. Returns ErrMalformedOutput when no block is recognized or
// a block carries no content.
func Parse(raw string, activePaths map[string]bool) ([]Proposal, error) {
	matches := fileHeader.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil, fmt.Errorf("no file blocks recognized: %w", ErrMalformedOutput)
	}

	proposals := make([]Proposal, 0, len(matches))
	for i, m := range matches {
		path := NormalizePath(raw[m[2]:m[3]])

		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(stripFences(raw[m[1]:end]))
		if content == "" {
			return nil, fmt.Errorf("file block %q has no content: %w", path, ErrMalformedOutput)
		}

		kind := KindCreate
		if activePaths[path] {
			kind = KindUpdate
		}
		proposals = append(proposals, Proposal{
			Path:     path,
			Content:  content,
			Language: store.InferLanguage(path),
			Kind:     kind,
		})
	}

	flagDuplicates(proposals)
	return proposals, nil
}

// NormalizePath cleans a proposed path. Models trained on older stacks emit
// .jsx; the project convention is .tsx, so the extension is rewritten.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	if strings.HasSuffix(p, ".jsx") {
		p = strings.TrimSuffix(p, ".jsx") + ".tsx"
	}
	return p
}

// stripFences removes a markdown code fence wrapping the block content, if
// the model added one despite the output contract.
func stripFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return content
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return content
	}
	// Drop the opening fence with its optional language tag.
	lines = lines[1:]
	// Drop the closing fence when present.
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if strings.TrimSpace(lines[i]) == "```" {
			lines = lines[:i]
		}
		break
	}
	return strings.Join(lines, "\n")
}

func flagDuplicates(proposals []Proposal) {
	seen := make(map[string]int, len(proposals))
	for _, p := range proposals {
		seen[p.Path]++
	}
	for i := range proposals {
		if seen[proposals[i].Path] > 1 {
			proposals[i].Duplicate = true
		}
	}
}
