package store

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown projects, paths, or versions.
var ErrNotFound = errors.New("not found")

// AuthoritySource tags who wrote an artifact version. It reflects the actor
// of the most recent write, not a property of the path.
type AuthoritySource string

const (
	AuthorityUserModified AuthoritySource = "user_modified"
	AuthorityAIGenerated  AuthoritySource = "ai_generated"
	AuthorityAIModified   AuthoritySource = "ai_modified"
)

// IsValidAuthority checks whether a string is a known authority source.
func IsValidAuthority(s string) bool {
	switch AuthoritySource(s) {
	case AuthorityUserModified, AuthorityAIGenerated, AuthorityAIModified:
		return true
	}
	return false
}

// Project is an isolation boundary holding one artifact ledger.
type Project struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template,omitempty"`
}

// ArtifactVersion is one immutable entry in a path's version chain.
type ArtifactVersion struct {
	CreatedAt time.Time       `json:"created_at"`
	ProjectID string          `json:"project_id"`
	Path      string          `json:"path"`
	Content   string          `json:"content"`
	Language  string          `json:"language"`
	Authority AuthoritySource `json:"authority"`
	RequestID string          `json:"request_id,omitempty"`
	Version   int             `json:"version"`
	Active    bool            `json:"active"`
}

// Name returns the last path element, the artifact's display name.
func (a *ArtifactVersion) Name() string {
	return path.Base(a.Path)
}

// GenerateProjectID generates a new UUID for a project.
func GenerateProjectID() string {
	return uuid.New().String()
}

// GenerateRequestID generates a new UUID for a generation request.
func GenerateRequestID() string {
	return uuid.New().String()
}

// systemPrefixes are directory prefixes never acceptable for generated
// files, even after normalization.
var systemPrefixes = []string{
	"etc/", "sys/", "root/", "proc/", "dev/",
	"windows/", "system32/", "program files/",
}

// ValidatePath normalizes a logical artifact path and rejects traversal,
// absolute, and system paths. Returns the normalized form.
func ValidatePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("artifact path cannot be empty")
	}

	normalized := path.Clean(strings.ReplaceAll(p, `\`, "/"))

	if normalized == "." || normalized == ".." || strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("directory traversal not allowed: %s", p)
	}
	if strings.HasPrefix(normalized, "/") {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}
	// Windows drive letters survive Clean; catch them explicitly.
	if len(normalized) >= 2 && normalized[1] == ':' {
		return "", fmt.Errorf("absolute paths not allowed: %s", p)
	}

	lower := strings.ToLower(normalized)
	for _, prefix := range systemPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return "", fmt.Errorf("system paths not allowed: %s", p)
		}
	}

	return normalized, nil
}

// InferLanguage maps a file extension to the language tag stored with the
// artifact. Unknown extensions default to tsx, the dominant generated type.
func InferLanguage(filePath string) string {
	switch {
	case strings.HasSuffix(filePath, ".tsx"):
		return "tsx"
	case strings.HasSuffix(filePath, ".ts"):
		return "ts"
	case strings.HasSuffix(filePath, ".jsx"), strings.HasSuffix(filePath, ".js"):
		return "js"
	case strings.HasSuffix(filePath, ".css"):
		return "css"
	case strings.HasSuffix(filePath, ".json"):
		return "json"
	case strings.HasSuffix(filePath, ".html"):
		return "html"
	default:
		return "tsx"
	}
}
