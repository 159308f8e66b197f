// Package orch coordinates the generation pipeline: prompt assembly, the
// external model call, response parsing, per-file validation, and the
// transactional commit of the accepted subset.
package orch

import (
	"context"
	"fmt"
	"time"

	"siteforge/pkg/knowledge"
	"siteforge/pkg/llm"
	"siteforge/pkg/logx"
	"siteforge/pkg/metrics"
	"siteforge/pkg/parser"
	"siteforge/pkg/prompt"
	"siteforge/pkg/store"
	"siteforge/pkg/validate"
)

// GenerateRequest describes one user generation request. AllowedPaths gates
// which files the model may touch ("*" permits all, empty leaves scope
// unrestricted); TargetPaths optionally names files the caller intends to
// change, letting protection failures surface before the model is called.
type GenerateRequest struct {
	Request      string   `json:"request"`
	AllowedPaths []string `json:"allowed_paths,omitempty"`
	TargetPaths  []string `json:"target_paths,omitempty"`
	// FileSubset optionally narrows the project state shown to the model;
	// empty shows every active file.
	FileSubset []string `json:"file_subset,omitempty"`
}

// Rejection reports one refused file with a human-readable reason.
type Rejection struct {
	Path   string                `json:"path"`
	Reason validate.RejectReason `json:"reason"`
	Detail string                `json:"detail"`
}

// GenerateResult is the outcome of one generation: the committed artifacts,
// the per-file rejections, and the project's new activity timestamp.
type GenerateResult struct {
	UpdatedAt     time.Time                `json:"updated_at"`
	RequestID     string                   `json:"request_id"`
	Model         string                   `json:"model"`
	PromptText    string                   `json:"prompt_text,omitempty"`
	Committed     []*store.ArtifactVersion `json:"committed"`
	Rejected      []Rejection              `json:"rejected"`
	PromptTokens  int                      `json:"prompt_tokens"`
	EstimatedCost float64                  `json:"estimated_cost"`
}

// PreviewResult is the prompt a generation would send, with its section
// breakdown and size estimates. Producing it has no side effects.
type PreviewResult struct {
	Text          string           `json:"text"`
	Sections      []prompt.Section `json:"sections"`
	Tokens        int              `json:"tokens"`
	EstimatedCost float64          `json:"estimated_cost"`
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	store     *store.Store
	index     *knowledge.Index
	assembler *prompt.Assembler
	client    llm.Client
	recorder  *metrics.Recorder
	logger    *logx.Logger
	locks     lockRegistry

	retrievalTopK int
	maxTokens     int
	temperature   float64
}

// New creates an Orchestrator over the given components.
func New(st *store.Store, index *knowledge.Index, assembler *prompt.Assembler,
	client llm.Client, recorder *metrics.Recorder, retrievalTopK, maxTokens int, temperature float64) *Orchestrator {
	return &Orchestrator{
		store:         st,
		index:         index,
		assembler:     assembler,
		client:        client,
		recorder:      recorder,
		logger:        logx.NewLogger("orch"),
		retrievalTopK: retrievalTopK,
		maxTokens:     maxTokens,
		temperature:   temperature,
	}
}

// Preview assembles the prompt a generation would send, without calling the
// model or writing anything.
func (o *Orchestrator) Preview(ctx context.Context, projectID string, req GenerateRequest) (*PreviewResult, error) {
	if _, err := o.store.GetProject(projectID); err != nil {
		return nil, err
	}

	assembled, _, err := o.assemble(ctx, projectID, req)
	if err != nil {
		return nil, err
	}
	return &PreviewResult{
		Text:          assembled.Text,
		Sections:      assembled.Sections,
		Tokens:        assembled.Tokens,
		EstimatedCost: assembled.EstimatedCost,
	}, nil
}

// Generate runs the full pipeline for one request. The external call happens
// outside the project lock; validation re-reads fresh state under the lock
// before committing. A malformed response or transport failure aborts with
// zero commits.
func (o *Orchestrator) Generate(ctx context.Context, projectID string, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()
	requestID := store.GenerateRequestID()

	project, err := o.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}

	// Protection conflicts the caller already knows the targets of fail
	// before any model tokens are spent.
	if blocked, err := o.preValidateTargets(projectID, req); err != nil {
		return nil, err
	} else if len(blocked) > 0 {
		o.logger.Info("request %s blocked before model call: %d protected targets", requestID, len(blocked))
		for _, rej := range blocked {
			o.recorder.IncRejection(string(rej.Reason))
		}
		return &GenerateResult{
			UpdatedAt: project.UpdatedAt,
			RequestID: requestID,
			Model:     o.client.ModelName(),
			Rejected:  blocked,
		}, nil
	}

	assembled, activePaths, err := o.assemble(ctx, projectID, req)
	if err != nil {
		return nil, err
	}

	resp, err := o.client.Complete(ctx, llm.Request{
		System:      assembled.SystemText,
		Prompt:      assembled.UserText,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	})
	if err != nil {
		o.recorder.ObserveGeneration(o.client.ModelName(), "transport_failure", assembled.Tokens, 0, time.Since(start))
		return nil, fmt.Errorf("generation request %s: %w", requestID, err)
	}

	proposals, err := parser.Parse(resp.Content, activePaths)
	if err != nil {
		o.recorder.ObserveGeneration(resp.Model, "malformed_output", assembled.Tokens, assembled.EstimatedCost, time.Since(start))
		return nil, fmt.Errorf("generation request %s: %w", requestID, err)
	}

	committed, rejected, err := o.applyProposals(projectID, requestID, proposals, req.AllowedPaths)
	if err != nil {
		return nil, err
	}

	updatedAt, err := o.store.TouchProject(projectID)
	if err != nil {
		return nil, err
	}

	o.recorder.ObserveGeneration(resp.Model, "success", assembled.Tokens, assembled.EstimatedCost, time.Since(start))
	o.logger.Info("request %s: %d committed, %d rejected (%s)",
		requestID, len(committed), len(rejected), time.Since(start).Round(time.Millisecond))

	return &GenerateResult{
		UpdatedAt:     updatedAt,
		RequestID:     requestID,
		Model:         resp.Model,
		PromptText:    assembled.Text,
		Committed:     committed,
		Rejected:      rejected,
		PromptTokens:  assembled.Tokens,
		EstimatedCost: assembled.EstimatedCost,
	}, nil
}

// Rollback restores a historical version as a new commit and bumps the
// project's activity timestamp.
func (o *Orchestrator) Rollback(_ context.Context, projectID, path string, version int) (*store.ArtifactVersion, error) {
	unlock := o.locks.acquire(projectID)
	restored, err := o.store.Rollback(projectID, path, version)
	unlock()
	if err != nil {
		return nil, err
	}

	if _, err := o.store.TouchProject(projectID); err != nil {
		return nil, err
	}
	o.recorder.IncCommit(string(restored.Authority))
	return restored, nil
}

// CommitUserEdit records a direct user edit of a file. User writes bypass
// validation; they are the authority the validator later protects.
func (o *Orchestrator) CommitUserEdit(_ context.Context, projectID, path, content string) (*store.ArtifactVersion, error) {
	unlock := o.locks.acquire(projectID)
	artifact, err := o.store.Commit(projectID, path, content, store.AuthorityUserModified, "")
	unlock()
	if err != nil {
		return nil, err
	}

	if _, err := o.store.TouchProject(projectID); err != nil {
		return nil, err
	}
	o.recorder.IncCommit(string(artifact.Authority))
	return artifact, nil
}

// ModelName reports the active client's model identifier.
func (o *Orchestrator) ModelName() string {
	return o.client.ModelName()
}

// IngestPattern adds or replaces an advisory pattern in the knowledge index.
func (o *Orchestrator) IngestPattern(ctx context.Context, id, label, content string, tags []string) (*knowledge.Pattern, error) {
	return o.index.Ingest(ctx, id, label, content, tags)
}

// assemble builds the prompt input from current project state and advisory
// retrieval, returning the assembled prompt and the active path set.
func (o *Orchestrator) assemble(ctx context.Context, projectID string, req GenerateRequest) (*prompt.Assembled, map[string]bool, error) {
	state, err := o.store.ListActive(projectID)
	if err != nil {
		return nil, nil, err
	}

	activePaths := make(map[string]bool, len(state))
	for _, artifact := range state {
		activePaths[artifact.Path] = true
	}

	if len(req.FileSubset) > 0 {
		subset := make(map[string]bool, len(req.FileSubset))
		for _, p := range req.FileSubset {
			subset[parser.NormalizePath(p)] = true
		}
		filtered := state[:0]
		for _, artifact := range state {
			if subset[artifact.Path] {
				filtered = append(filtered, artifact)
			}
		}
		state = filtered
	}

	references, err := o.index.Retrieve(ctx, req.Request, o.retrievalTopK)
	if err != nil {
		return nil, nil, err
	}

	assembled := o.assembler.Build(prompt.Input{
		Request:      req.Request,
		State:        state,
		References:   references,
		AllowedPaths: req.AllowedPaths,
	})
	return assembled, activePaths, nil
}

// preValidateTargets checks the caller-declared target files against current
// authority, returning the protection rejections that would be inevitable.
func (o *Orchestrator) preValidateTargets(projectID string, req GenerateRequest) ([]Rejection, error) {
	if len(req.TargetPaths) == 0 {
		return nil, nil
	}

	proposals := make([]parser.Proposal, 0, len(req.TargetPaths))
	active := make(map[string]*store.ArtifactVersion, len(req.TargetPaths))
	for _, target := range req.TargetPaths {
		path := parser.NormalizePath(target)
		current, err := o.store.GetActive(projectID, path)
		if err == nil {
			active[path] = current
		}
		// Placeholder content: only authority and scope matter here.
		proposals = append(proposals, parser.Proposal{Path: path, Content: "-", Kind: parser.KindUpdate})
	}

	var blocked []Rejection
	for _, result := range validate.Evaluate(proposals, active, req.AllowedPaths) {
		if !result.Accepted {
			blocked = append(blocked, Rejection{
				Path:   result.Proposal.Path,
				Reason: result.Reason,
				Detail: result.Detail,
			})
		}
	}
	return blocked, nil
}

// applyProposals validates against fresh state under the project lock and
// commits the accepted subset.
func (o *Orchestrator) applyProposals(projectID, requestID string, proposals []parser.Proposal, allowed []string) ([]*store.ArtifactVersion, []Rejection, error) {
	unlock := o.locks.acquire(projectID)
	defer unlock()

	state, err := o.store.ListActive(projectID)
	if err != nil {
		return nil, nil, err
	}
	active := make(map[string]*store.ArtifactVersion, len(state))
	for _, artifact := range state {
		active[artifact.Path] = artifact
	}

	// Kind was inferred before the lock; recompute against fresh state so a
	// concurrent commit cannot mislabel an update as a create.
	for i := range proposals {
		if active[proposals[i].Path] != nil {
			proposals[i].Kind = parser.KindUpdate
		} else {
			proposals[i].Kind = parser.KindCreate
		}
	}

	var committed []*store.ArtifactVersion
	var rejected []Rejection
	for _, result := range validate.Evaluate(proposals, active, allowed) {
		if !result.Accepted {
			o.recorder.IncRejection(string(result.Reason))
			rejected = append(rejected, Rejection{
				Path:   result.Proposal.Path,
				Reason: result.Reason,
				Detail: result.Detail,
			})
			continue
		}

		artifact, err := o.store.Commit(projectID, result.Proposal.Path, result.Proposal.Content, result.Authority, requestID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to commit accepted file %s: %w", result.Proposal.Path, err)
		}
		o.recorder.IncCommit(string(artifact.Authority))
		committed = append(committed, artifact)
	}
	return committed, rejected, nil
}
