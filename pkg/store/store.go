package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"siteforge/pkg/logx"
)

// Store provides all project and artifact operations over one database.
// Commit and Rollback are transactional: the deactivation of the prior
// active version and the insertion of the new one happen atomically.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// NewStore creates a Store over an initialized database.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: logx.NewLogger("store"),
	}
}

// DB exposes the underlying handle for components sharing the database
// (the knowledge index persists patterns in the same file).
func (s *Store) DB() *sql.DB {
	return s.db
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProject registers a new project and returns it.
func (s *Store) CreateProject(name, template string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("project name cannot be empty")
	}

	now := time.Now().UTC()
	project := &Project{
		ID:        GenerateProjectID(),
		Name:      name,
		Template:  template,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.Exec(`
		INSERT INTO projects (id, name, template, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, project.ID, project.Name, nullable(project.Template), project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create project %s: %w", name, err)
	}

	s.logger.Info("project created: %s (%s)", project.Name, project.ID)
	return project, nil
}

// GetProject returns a project by ID, or ErrNotFound.
func (s *Store) GetProject(projectID string) (*Project, error) {
	project := &Project{}
	var template sql.NullString

	err := s.db.QueryRow(`
		SELECT id, name, template, created_at, updated_at
		FROM projects WHERE id = ?
	`, projectID).Scan(&project.ID, &project.Name, &template, &project.CreatedAt, &project.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", projectID, err)
	}

	if template.Valid {
		project.Template = template.String
	}
	return project, nil
}

// ListProjects returns all projects, oldest first.
func (s *Store) ListProjects() ([]*Project, error) {
	rows, err := s.db.Query(`
		SELECT id, name, template, created_at, updated_at
		FROM projects ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close in defer is safe

	var projects []*Project
	for rows.Next() {
		project := &Project{}
		var template sql.NullString
		if err := rows.Scan(&project.ID, &project.Name, &template, &project.CreatedAt, &project.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		if template.Valid {
			project.Template = template.String
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project rows error: %w", err)
	}
	return projects, nil
}

// DeleteProject removes a project and, via cascade, its entire artifact
// history. Returns ErrNotFound for unknown projects.
func (s *Store) DeleteProject(projectID string) error {
	res, err := s.db.Exec(`DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", projectID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	s.logger.Info("project deleted: %s", projectID)
	return nil
}

// TouchProject bumps a project's activity timestamp and returns it.
// The timestamp is monotonically increasing per project.
func (s *Store) TouchProject(projectID string) (time.Time, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE projects SET updated_at = ? WHERE id = ? AND updated_at < ?
	`, now, projectID, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to touch project %s: %w", projectID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		// Either unknown project or a clock that has not advanced; verify.
		if _, err := s.GetProject(projectID); err != nil {
			return time.Time{}, err
		}
	}
	return now, nil
}

// ---------------------------------------------------------------------------
// Artifacts
// ---------------------------------------------------------------------------

// GetActive returns the single active version for a path, or ErrNotFound.
func (s *Store) GetActive(projectID, filePath string) (*ArtifactVersion, error) {
	row := s.db.QueryRow(`
		SELECT project_id, path, version, content, language, authority, active, request_id, created_at
		FROM artifacts
		WHERE project_id = ? AND path = ? AND active = 1
	`, projectID, filePath)

	artifact, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s/%s: %w", projectID, filePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active artifact %s: %w", filePath, err)
	}
	return artifact, nil
}

// ListActive returns the active version of every path in the project, in
// insertion order of distinct paths (stable across calls absent mutation).
func (s *Store) ListActive(projectID string) ([]*ArtifactVersion, error) {
	rows, err := s.db.Query(`
		SELECT project_id, path, version, content, language, authority, active, request_id, created_at
		FROM artifacts a
		WHERE project_id = ? AND active = 1
		ORDER BY (SELECT MIN(id) FROM artifacts b WHERE b.project_id = a.project_id AND b.path = a.path)
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active artifacts: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close in defer is safe

	var artifacts []*ArtifactVersion
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("artifact rows error: %w", err)
	}
	return artifacts, nil
}

// History returns every version for a path, oldest first, including
// inactive ones. Returns ErrNotFound if the path has no versions at all.
func (s *Store) History(projectID, filePath string) ([]*ArtifactVersion, error) {
	rows, err := s.db.Query(`
		SELECT project_id, path, version, content, language, authority, active, request_id, created_at
		FROM artifacts
		WHERE project_id = ? AND path = ?
		ORDER BY version
	`, projectID, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close() //nolint:errcheck // close in defer is safe

	var versions []*ArtifactVersion
	for rows.Next() {
		artifact, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		versions = append(versions, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("artifact rows error: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("artifact %s/%s: %w", projectID, filePath, ErrNotFound)
	}
	return versions, nil
}

// Commit appends a new version for a path and makes it active. The prior
// active version (if any) is deactivated in the same transaction, so the
// one-active invariant holds even across a crash mid-commit.
func (s *Store) Commit(projectID, filePath, content string, authority AuthoritySource, requestID string) (*ArtifactVersion, error) {
	normalized, err := ValidatePath(filePath)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("artifact content cannot be empty")
	}
	if !IsValidAuthority(string(authority)) {
		return nil, fmt.Errorf("unknown authority source: %q", authority)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin commit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after successful commit

	// Unknown projects must fail with NotFound, not a bare FK error.
	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM projects WHERE id = ?`, projectID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to check project: %w", err)
	}

	var maxVersion int
	err = tx.QueryRow(`
		SELECT COALESCE(MAX(version), 0) FROM artifacts WHERE project_id = ? AND path = ?
	`, projectID, normalized).Scan(&maxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to read version chain: %w", err)
	}

	if _, err := tx.Exec(`
		UPDATE artifacts SET active = 0 WHERE project_id = ? AND path = ? AND active = 1
	`, projectID, normalized); err != nil {
		return nil, fmt.Errorf("failed to deactivate prior version: %w", err)
	}

	artifact := &ArtifactVersion{
		ProjectID: projectID,
		Path:      normalized,
		Version:   maxVersion + 1,
		Content:   content,
		Language:  InferLanguage(normalized),
		Authority: authority,
		Active:    true,
		RequestID: requestID,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := tx.Exec(`
		INSERT INTO artifacts (project_id, path, version, content, language, authority, active, request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, artifact.ProjectID, artifact.Path, artifact.Version, artifact.Content,
		artifact.Language, string(artifact.Authority), nullable(artifact.RequestID), artifact.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to insert version %d of %s: %w", artifact.Version, normalized, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug("committed %s v%d (%s)", artifact.Path, artifact.Version, artifact.Authority)
	return artifact, nil
}

// Rollback re-commits the content of a historical version as a new version.
// Authority is copied from the target version; history stays append-only.
func (s *Store) Rollback(projectID, filePath string, targetVersion int) (*ArtifactVersion, error) {
	row := s.db.QueryRow(`
		SELECT project_id, path, version, content, language, authority, active, request_id, created_at
		FROM artifacts
		WHERE project_id = ? AND path = ? AND version = ?
	`, projectID, filePath, targetVersion)

	target, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d of %s/%s: %w", targetVersion, projectID, filePath, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read version %d of %s: %w", targetVersion, filePath, err)
	}

	return s.Commit(projectID, filePath, target.Content, target.Authority, "")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*ArtifactVersion, error) {
	artifact := &ArtifactVersion{}
	var authority string
	var active int
	var requestID sql.NullString

	err := row.Scan(
		&artifact.ProjectID,
		&artifact.Path,
		&artifact.Version,
		&artifact.Content,
		&artifact.Language,
		&authority,
		&active,
		&requestID,
		&artifact.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	artifact.Authority = AuthoritySource(authority)
	artifact.Active = active == 1
	if requestID.Valid {
		artifact.RequestID = requestID.String
	}
	return artifact, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
