package prompt

import (
	"fmt"
	"sort"
	"strings"

	"siteforge/pkg/knowledge"
	"siteforge/pkg/store"
)

// systemInstructions is the fixed leading section of every prompt.
const systemInstructions = `You are an expert frontend engineer generating and modifying website source files.
Work only within the files you are shown and the files you are allowed to touch.
Prefer TypeScript with React (.tsx) and Tailwind CSS utility classes.
Return complete file contents, never fragments or diffs.`

// outputFormat tells the model how to shape its response so the parser can
// recover file blocks from it.
const outputFormat = `Respond with one block per file, in this exact format:

FILE: <file_path>
<complete file content>

Repeat the FILE: header for each file. Do not wrap blocks in markdown fences.
Do not include any file you are not changing.`

// Section is one titled segment of an assembled prompt with its own token
// count.
type Section struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Tokens int    `json:"tokens"`
}

// Input carries everything prompt assembly depends on. Assembly reads it and
// nothing else, so previews and real generations build identical prompts.
type Input struct {
	Request      string
	State        []*store.ArtifactVersion
	References   []knowledge.ScoredPattern
	AllowedPaths []string
}

// Assembled is a finished prompt with its size and cost estimates. Text is
// the full transcript; SystemText and UserText split it along the message
// roles the provider clients accept.
type Assembled struct {
	Text          string    `json:"text"`
	SystemText    string    `json:"-"`
	UserText      string    `json:"-"`
	Sections      []Section `json:"sections"`
	Tokens        int       `json:"tokens"`
	EstimatedCost float64   `json:"estimated_cost"`
}

// Assembler builds prompts with fixed section ordering.
type Assembler struct {
	counter    *TokenCounter
	costPer1K  float64
	entryChars int
	totalChars int
}

// NewAssembler creates an Assembler. entryChars and totalChars bound the
// advisory references section; costPer1K prices the token estimate.
func NewAssembler(counter *TokenCounter, costPer1K float64, entryChars, totalChars int) *Assembler {
	if entryChars <= 0 {
		entryChars = 300
	}
	if totalChars <= 0 {
		totalChars = 1200
	}
	return &Assembler{
		counter:    counter,
		costPer1K:  costPer1K,
		entryChars: entryChars,
		totalChars: totalChars,
	}
}

// Build assembles the prompt. The section list is fixed in both presence
// and order: instructions, project state, advisory references, allowed
// files, user request, output format. Sections with nothing to show carry
// a placeholder body, so every prompt has the same six-section shape and a
// token count per section.
func (a *Assembler) Build(input Input) *Assembled {
	sections := []Section{
		{Title: "SYSTEM INSTRUCTIONS", Body: systemInstructions},
		{Title: "CURRENT PROJECT FILES", Body: formatProjectState(input.State)},
		{Title: "REFERENCE PATTERNS (advisory only)", Body: a.formatReferences(input.References)},
		{Title: "FILES YOU MAY MODIFY", Body: formatAllowedFiles(input.AllowedPaths)},
		{Title: "USER REQUEST", Body: strings.TrimSpace(input.Request)},
		{Title: "OUTPUT FORMAT", Body: outputFormat},
	}

	total := 0
	for i := range sections {
		sections[i].Tokens = a.counter.Count(sections[i].Body)
		total += sections[i].Tokens
	}

	var user strings.Builder
	for i, s := range sections[1:] {
		if i > 0 {
			user.WriteString("\n\n")
		}
		fmt.Fprintf(&user, "## %s\n\n%s", s.Title, s.Body)
	}
	userText := user.String()
	text := fmt.Sprintf("## %s\n\n%s\n\n%s", sections[0].Title, sections[0].Body, userText)

	return &Assembled{
		Text:          text,
		SystemText:    sections[0].Body,
		UserText:      userText,
		Sections:      sections,
		Tokens:        total,
		EstimatedCost: EstimateCost(total, a.costPer1K),
	}
}

// formatProjectState renders the active artifacts verbatim, ordered by path.
// Project state is authoritative: files appear whole, never truncated.
func formatProjectState(state []*store.ArtifactVersion) string {
	if len(state) == 0 {
		return "(No project files yet.)"
	}

	ordered := make([]*store.ArtifactVersion, len(state))
	copy(ordered, state)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Path < ordered[j].Path })

	var b strings.Builder
	for i, artifact := range ordered {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- %s ---\n%s", artifact.Path, artifact.Content)
	}
	return b.String()
}

// formatReferences renders retrieved patterns under per-entry and total
// character caps. Advisory material is bounded so it can never crowd out
// the authoritative sections.
func (a *Assembler) formatReferences(refs []knowledge.ScoredPattern) string {
	var b strings.Builder
	for _, ref := range refs {
		entry := fmt.Sprintf("[%s]\n%s", ref.Label, strings.TrimSpace(ref.Content))
		if len(entry) > a.entryChars {
			entry = entry[:a.entryChars] + "..."
		}

		addition := entry
		if b.Len() > 0 {
			addition = "\n\n" + entry
		}
		if b.Len()+len(addition) > a.totalChars {
			break
		}
		b.WriteString(addition)
	}
	if b.Len() == 0 {
		return "(No reference patterns retrieved.)"
	}
	return b.String()
}

func formatAllowedFiles(allowed []string) string {
	if len(allowed) == 0 {
		return "(No file scope declared.)"
	}
	for _, p := range allowed {
		if p == "*" {
			return "You may create or modify any file in the project."
		}
	}
	var b strings.Builder
	b.WriteString("Only the following files may be created or modified:\n")
	for _, p := range allowed {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}
