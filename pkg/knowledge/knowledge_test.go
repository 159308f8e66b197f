package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteforge/pkg/store"
)

func createTestIndex(t *testing.T) *Index {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := store.InitializeDatabase(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewIndex(db, NewHashingEmbedder())
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"nav", "bar", "component"}, Tokenize("NavBar component"))
	assert.Equal(t, []string{"use", "state"}, Tokenize("useState"))
	assert.Equal(t, []string{"grid", "2"}, Tokenize("grid-2"))
	assert.Empty(t, Tokenize("  ... "))
}

func TestHashingEmbedderDeterministic(t *testing.T) {
	e := NewHashingEmbedder()
	a, err := e.Embed(context.Background(), "responsive navbar with tailwind")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "responsive navbar with tailwind")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	// Normalized output: cosine with itself is 1.
	assert.InDelta(t, 1.0, cosine(a, b), 1e-6)
}

func TestIngestAndRetrieve(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "navbar", "Responsive navbar",
		"Use a flex container with justify-between for the navbar layout.", []string{"layout"})
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "form", "Contact form validation",
		"Validate email fields on blur and disable submit until valid.", []string{"forms"})
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "footer", "Footer columns",
		"Three column footer with social links and copyright.", nil)
	require.NoError(t, err)

	results, err := idx.Retrieve(ctx, "build me a navbar", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "navbar", results[0].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestRetrieveWithTagFilter(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "navbar", "Navbar layout", "navbar layout content", []string{"layout"})
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "form", "Navbar form", "navbar form content", []string{"forms"})
	require.NoError(t, err)

	results, err := idx.Retrieve(ctx, "navbar", 5, "forms")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "form", results[0].ID)
}

func TestRetrieveEmptyIndex(t *testing.T) {
	idx := createTestIndex(t)
	results, err := idx.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRetrieveDeterministicOrder(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	// Identical content scores identically; order must fall back to ID.
	_, err := idx.Ingest(ctx, "b-pattern", "same", "identical content here", nil)
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "a-pattern", "same", "identical content here", nil)
	require.NoError(t, err)

	first, err := idx.Retrieve(ctx, "identical content", 2)
	require.NoError(t, err)
	second, err := idx.Retrieve(ctx, "identical content", 2)
	require.NoError(t, err)

	require.Len(t, first, 2)
	assert.Equal(t, "a-pattern", first[0].ID)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[1].ID, second[1].ID)
}

func TestIngestReplacesByID(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "hero", "Hero section", "old content", nil)
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, "hero", "Hero section", "new content", []string{"updated"})
	require.NoError(t, err)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	patterns, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "new content", patterns[0].Content)
	assert.Equal(t, []string{"updated"}, patterns[0].Tags)
}

func TestIngestValidation(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	_, err := idx.Ingest(ctx, "", "label", "content", nil)
	assert.Error(t, err)
	_, err = idx.Ingest(ctx, "id", "label", "", nil)
	assert.Error(t, err)
}

func TestEmbeddingRoundTrip(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	p, err := idx.Ingest(ctx, "rt", "round trip", "some content to embed", nil)
	require.NoError(t, err)

	patterns, err := idx.List(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, p.Embedding, patterns[0].Embedding)
}

func TestSeedIfEmpty(t *testing.T) {
	idx := createTestIndex(t)
	ctx := context.Background()

	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	seed := `patterns:
  - id: navbar
    label: Responsive navbar
    content: Flex container with justify-between.
    tags: [layout, tailwind]
  - id: hero
    label: Hero section
    content: Full-width hero with a call to action button.
`
	require.NoError(t, os.WriteFile(seedPath, []byte(seed), 0o644))

	n, err := idx.SeedIfEmpty(ctx, seedPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second call is a no-op; operator data is not clobbered.
	n, err = idx.SeedIfEmpty(ctx, seedPath)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestParseSeedRejectsMissingFields(t *testing.T) {
	_, err := ParseSeed([]byte("patterns:\n  - label: no id\n    content: x\n"))
	assert.Error(t, err)
	_, err = ParseSeed([]byte("patterns:\n  - id: empty\n"))
	assert.Error(t, err)
	_, err = ParseSeed([]byte("patterns: ["))
	assert.Error(t, err)
}
