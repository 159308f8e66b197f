// Package validate decides, per proposed file, whether a model proposal may
// be committed. Every proposal is evaluated independently; a rejection never
// affects the outcome of the other proposals in the same response.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"

	"siteforge/pkg/parser"
	"siteforge/pkg/store"
)

// RejectReason classifies why a single proposal was refused. These are
// per-file outcomes, never fatal to the request.
type RejectReason string

const (
	ReasonProtectedFile       RejectReason = "protected_file"
	ReasonOutOfScope          RejectReason = "out_of_scope"
	ReasonDuplicateInResponse RejectReason = "duplicate_in_response"
	ReasonEmptyContent        RejectReason = "empty_content"
	ReasonInvalidPath         RejectReason = "invalid_path"
	ReasonInvalidSyntax       RejectReason = "invalid_syntax"
)

// Result is the verdict for one proposal. Accepted results carry the
// authority the commit must record; rejected ones carry a reason and a
// human-readable detail.
type Result struct {
	Proposal  parser.Proposal       `json:"proposal"`
	Authority store.AuthoritySource `json:"authority,omitempty"`
	Reason    RejectReason          `json:"reason,omitempty"`
	Detail    string                `json:"detail,omitempty"`
	Accepted  bool                  `json:"accepted"`
}

// Evaluate runs the validation rules over each proposal: authority, then
// scope, then consistency. active maps each path to its current active
// version; allowed is the request's allowed-paths list, where "*" permits
// every path and an empty list leaves scope unrestricted.
func Evaluate(proposals []parser.Proposal, active map[string]*store.ArtifactVersion, allowed []string) []Result {
	results := make([]Result, 0, len(proposals))
	for _, p := range proposals {
		results = append(results, evaluateOne(p, active, allowed))
	}
	return results
}

func evaluateOne(p parser.Proposal, active map[string]*store.ArtifactVersion, allowed []string) Result {
	result := Result{Proposal: p}

	if _, err := store.ValidatePath(p.Path); err != nil {
		return reject(result, ReasonInvalidPath, fmt.Sprintf("path %q is not a valid project path: %v", p.Path, err))
	}

	current := active[p.Path]

	// A file the user wrote directly stays theirs unless the request names
	// it as fair game.
	if current != nil && current.Authority == store.AuthorityUserModified && !pathAllowed(allowed, p.Path) {
		return reject(result, ReasonProtectedFile,
			fmt.Sprintf("%s was edited by the user and is blocked by protection; add it to the allowed files to modify it", p.Path))
	}

	if len(allowed) > 0 && !pathAllowed(allowed, p.Path) {
		return reject(result, ReasonOutOfScope,
			fmt.Sprintf("%s is blocked by scope: not in the request's allowed files", p.Path))
	}

	if p.Duplicate {
		return reject(result, ReasonDuplicateInResponse,
			fmt.Sprintf("%s appears more than once in the model response", p.Path))
	}

	// An empty rewrite of a non-empty file is almost always a truncated
	// generation, not an intentional wipe.
	if p.Kind == parser.KindUpdate && strings.TrimSpace(p.Content) == "" &&
		current != nil && strings.TrimSpace(current.Content) != "" {
		return reject(result, ReasonEmptyContent,
			fmt.Sprintf("%s: proposed content is empty but the current file is not", p.Path))
	}

	// Syntax is only machine-checkable for data files.
	if strings.HasSuffix(p.Path, ".json") && !json.Valid([]byte(p.Content)) {
		return reject(result, ReasonInvalidSyntax,
			fmt.Sprintf("%s: proposed content is not valid JSON", p.Path))
	}

	result.Accepted = true
	result.Authority = resultingAuthority(p.Kind)
	return result
}

// resultingAuthority is fixed by the proposal kind. Prior authority never
// carries forward once the pipeline writes a path.
func resultingAuthority(kind parser.ProposalKind) store.AuthoritySource {
	if kind == parser.KindUpdate {
		return store.AuthorityAIModified
	}
	return store.AuthorityAIGenerated
}

func pathAllowed(allowed []string, path string) bool {
	for _, entry := range allowed {
		if entry == "*" || entry == path {
			return true
		}
	}
	return false
}

func reject(r Result, reason RejectReason, detail string) Result {
	r.Accepted = false
	r.Reason = reason
	r.Detail = detail
	return r
}
