package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteforge/pkg/knowledge"
	"siteforge/pkg/store"
)

func newTestAssembler() *Assembler {
	return NewAssembler(NewTokenCounter(4), 0.001, 300, 1200)
}

func TestTokenCounterNonEmptyMinimumOne(t *testing.T) {
	tc := NewTokenCounter(4)
	assert.Equal(t, 0, tc.Count(""))
	assert.GreaterOrEqual(t, tc.Count("x"), 1)
	assert.Greater(t, tc.Count(strings.Repeat("hello world ", 100)), 50)
}

func TestEstimateCost(t *testing.T) {
	assert.InDelta(t, 0.001, EstimateCost(1000, 0.001), 1e-9)
	assert.InDelta(t, 0.0005, EstimateCost(500, 0.001), 1e-9)
	assert.Equal(t, 0.0, EstimateCost(0, 0.001))
}

func TestBuildSectionOrder(t *testing.T) {
	a := newTestAssembler()
	out := a.Build(Input{
		Request: "Add a hero section",
		State: []*store.ArtifactVersion{
			{Path: "src/App.tsx", Content: "export default function App() {}"},
		},
		References: []knowledge.ScoredPattern{
			{Pattern: knowledge.Pattern{Label: "Hero", Content: "Full width hero."}, Score: 0.9},
		},
		AllowedPaths: []string{"src/App.tsx"},
	})

	titles := make([]string, len(out.Sections))
	for i, s := range out.Sections {
		titles[i] = s.Title
	}
	assert.Equal(t, []string{
		"SYSTEM INSTRUCTIONS",
		"CURRENT PROJECT FILES",
		"REFERENCE PATTERNS (advisory only)",
		"FILES YOU MAY MODIFY",
		"USER REQUEST",
		"OUTPUT FORMAT",
	}, titles)

	// Section order must hold in the flat text too.
	stateIdx := strings.Index(out.Text, "CURRENT PROJECT FILES")
	reqIdx := strings.Index(out.Text, "USER REQUEST")
	require.Greater(t, reqIdx, stateIdx)
	assert.Contains(t, out.Text, "--- src/App.tsx ---")
	assert.Contains(t, out.Text, "FILE: <file_path>")
}

func TestBuildDeterministic(t *testing.T) {
	a := newTestAssembler()
	input := Input{
		Request: "Make the navbar sticky",
		State: []*store.ArtifactVersion{
			{Path: "components/Navbar.tsx", Content: "nav content"},
			{Path: "styles/main.css", Content: "body {}"},
		},
		AllowedPaths: []string{"*"},
	}

	first := a.Build(input)
	second := a.Build(input)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Tokens, second.Tokens)
	assert.Equal(t, first.EstimatedCost, second.EstimatedCost)
	assert.Greater(t, first.Tokens, 0)
	assert.Greater(t, first.EstimatedCost, 0.0)
}

func TestBuildEmptySectionsCarryPlaceholders(t *testing.T) {
	a := newTestAssembler()
	out := a.Build(Input{Request: "Create a landing page"})

	require.Len(t, out.Sections, 6)
	assert.Contains(t, out.Text, "(No project files yet.)")
	assert.Contains(t, out.Text, "(No reference patterns retrieved.)")
	assert.Contains(t, out.Text, "(No file scope declared.)")
	assert.Contains(t, out.Text, "USER REQUEST")
}

func TestBuildPerSectionTokenCounts(t *testing.T) {
	a := newTestAssembler()
	out := a.Build(Input{
		Request: "Add a hero section",
		State: []*store.ArtifactVersion{
			{Path: "src/App.tsx", Content: "export default function App() {}"},
		},
	})

	require.Len(t, out.Sections, 6)
	sum := 0
	for _, s := range out.Sections {
		assert.Greater(t, s.Tokens, 0, s.Title)
		sum += s.Tokens
	}
	assert.Equal(t, sum, out.Tokens)
}

func TestBuildSplitsSystemFromUserText(t *testing.T) {
	a := newTestAssembler()
	out := a.Build(Input{Request: "x"})

	assert.Equal(t, systemInstructions, out.SystemText)
	assert.NotContains(t, out.UserText, "SYSTEM INSTRUCTIONS")
	assert.Equal(t, "## SYSTEM INSTRUCTIONS\n\n"+out.SystemText+"\n\n"+out.UserText, out.Text)
}

func TestBuildWildcardAllowedFiles(t *testing.T) {
	a := newTestAssembler()
	out := a.Build(Input{Request: "x", AllowedPaths: []string{"*"}})
	assert.Contains(t, out.Text, "any file in the project")

	out = a.Build(Input{Request: "x", AllowedPaths: []string{"a.tsx", "b.tsx"}})
	assert.Contains(t, out.Text, "- a.tsx")
	assert.Contains(t, out.Text, "- b.tsx")
}

func TestReferencesEntryCap(t *testing.T) {
	a := NewAssembler(NewTokenCounter(4), 0.001, 50, 1200)
	out := a.Build(Input{
		Request: "x",
		References: []knowledge.ScoredPattern{
			{Pattern: knowledge.Pattern{Label: "Big", Content: strings.Repeat("long pattern text ", 50)}},
		},
	})

	var refs string
	for _, s := range out.Sections {
		if strings.HasPrefix(s.Title, "REFERENCE") {
			refs = s.Body
		}
	}
	require.NotEmpty(t, refs)
	assert.LessOrEqual(t, len(refs), 50+len("..."))
	assert.True(t, strings.HasSuffix(refs, "..."))
}

func TestReferencesTotalCap(t *testing.T) {
	entry := strings.Repeat("p", 280)
	var refs []knowledge.ScoredPattern
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		refs = append(refs, knowledge.ScoredPattern{
			Pattern: knowledge.Pattern{ID: id, Label: id, Content: entry},
		})
	}

	a := newTestAssembler()
	out := a.Build(Input{Request: "x", References: refs})

	var body string
	for _, s := range out.Sections {
		if strings.HasPrefix(s.Title, "REFERENCE") {
			body = s.Body
		}
	}
	require.NotEmpty(t, body)
	assert.LessOrEqual(t, len(body), 1200)
	// At least the first entry fits.
	assert.Contains(t, body, "[a]")
	// The later entries were cut by the total cap.
	assert.NotContains(t, body, "[g]")
}

func TestProjectStateOrderedByPath(t *testing.T) {
	a := newTestAssembler()
	out := a.Build(Input{
		Request: "x",
		State: []*store.ArtifactVersion{
			{Path: "styles/main.css", Content: "c"},
			{Path: "components/Navbar.tsx", Content: "a"},
			{Path: "src/App.tsx", Content: "b"},
		},
	})

	navIdx := strings.Index(out.Text, "--- components/Navbar.tsx ---")
	appIdx := strings.Index(out.Text, "--- src/App.tsx ---")
	cssIdx := strings.Index(out.Text, "--- styles/main.css ---")
	assert.Greater(t, appIdx, navIdx)
	assert.Greater(t, cssIdx, appIdx)
}

func TestProjectStateNeverTruncated(t *testing.T) {
	big := strings.Repeat("const x = 1;\n", 500)
	a := newTestAssembler()
	out := a.Build(Input{
		Request: "x",
		State:   []*store.ArtifactVersion{{Path: "big.ts", Content: big}},
	})
	assert.Contains(t, out.Text, big)
}
