// Package knowledge maintains the advisory pattern index: project-independent
// snippets and conventions retrieved by similarity and offered to prompt
// assembly as reference material. Nothing here is authoritative; retrieval
// output never overrides project state.
package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"google.golang.org/genai"
)

// Embedder converts text into a vector for similarity scoring. Implementations
// must be deterministic for a given input so retrieval stays reproducible.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// hashingDim is the fixed dimensionality of the local embedder. Large enough
// that token collisions are rare at index sizes in the hundreds.
const hashingDim = 256

// HashingEmbedder is the default, fully local embedder. It feature-hashes
// lowercased identifier tokens into a fixed-width vector and L2-normalizes,
// so cosine similarity reduces to a dot product. No network, no model files.
type HashingEmbedder struct{}

// NewHashingEmbedder creates the local feature-hashing embedder.
func NewHashingEmbedder() *HashingEmbedder {
	return &HashingEmbedder{}
}

// Embed hashes each token of the text into one of hashingDim buckets and
// returns the normalized bucket counts. Deterministic and context-free.
func (e *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashingDim)
	for _, token := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[h.Sum32()%hashingDim]++
	}
	normalize(vec)
	return vec, nil
}

// Tokenize splits text into lowercased identifier tokens. CamelCase splits
// into its words so "NavBar" and "nav bar" hash to the same buckets.
func Tokenize(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, strings.ToLower(current.String()))
			current.Reset()
		}
	}

	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			current.WriteRune(r)
		case unicode.IsDigit(r):
			current.WriteRune(r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return tokens
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

// cosine returns the cosine similarity of two vectors. Mismatched dimensions
// or zero vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// GeminiEmbedder embeds via the Gemini embedding API. Used only when an API
// key is configured; the hashing embedder remains the fallback so the index
// works offline.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// DefaultGeminiEmbeddingModel is the embedding model used when none is set.
const DefaultGeminiEmbeddingModel = "gemini-embedding-001"

// NewGeminiEmbedder creates an embedder backed by the Gemini API.
func NewGeminiEmbedder(ctx context.Context, apiKey, model string) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedder requires an API key")
	}
	if model == "" {
		model = DefaultGeminiEmbeddingModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client, model: model}, nil
}

// Embed requests one embedding from the Gemini API.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embedding failed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini returned no embedding")
	}
	return resp.Embeddings[0].Values, nil
}
