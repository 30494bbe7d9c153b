package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iskim1407-claw/makeit/internal/adapter/github"
	"github.com/iskim1407-claw/makeit/internal/adapter/vercel"
	"github.com/iskim1407-claw/makeit/internal/domain"
	"github.com/iskim1407-claw/makeit/internal/telemetry"
)

const (
	mainBranch    = "main"
	mainRef       = "refs/heads/main"
	commitMessage = "Initial app created with Makeit"
	fileMode      = "100644"
	blobType      = "blob"
)

var tracer = otel.Tracer("github.com/iskim1407-claw/makeit/internal/service/deploy")

// CredentialReader is the part of the token store a deployment needs.
type CredentialReader interface {
	Get(ctx context.Context, userID string, provider domain.Provider) (domain.Credential, error)
}

// GitHubAPI is the git data surface used to publish a project.
type GitHubAPI interface {
	AuthenticatedUser(ctx context.Context, token string) (string, error)
	CreateRepository(ctx context.Context, token string, in github.CreateRepositoryInput) (github.Repository, error)
	GetRepository(ctx context.Context, token, owner, repo string) (github.Repository, error)
	GetBranchHead(ctx context.Context, token, owner, repo, branch string) (string, error)
	CreateRef(ctx context.Context, token, owner, repo, ref, sha string) error
	UpdateRef(ctx context.Context, token, owner, repo, branch, sha string, force bool) error
	CreateBlob(ctx context.Context, token, owner, repo, content string) (string, error)
	CreateTree(ctx context.Context, token, owner, repo, baseTree string, entries []github.TreeEntry) (string, error)
	CreateCommit(ctx context.Context, token, owner, repo, message, tree string, parents []string) (string, error)
}

// VercelAPI triggers hosting deployments.
type VercelAPI interface {
	CreateDeployment(ctx context.Context, token string, in vercel.DeploymentInput) (vercel.Deployment, error)
}

// Options tunes the repository readiness poll.
type Options struct {
	ReadyAttempts   int
	ReadyInterval   time.Duration
	BlobConcurrency int
}

// Orchestrator publishes a generated project to GitHub and triggers a
// Vercel deployment of it.
type Orchestrator struct {
	credentials CredentialReader
	github      GitHubAPI
	vercel      VercelAPI
	opts        Options
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

// NewOrchestrator wires the orchestrator.
func NewOrchestrator(credentials CredentialReader, gh GitHubAPI, vc VercelAPI, opts Options, metrics *telemetry.Metrics, logger *zap.Logger) *Orchestrator {
	if opts.ReadyAttempts < 1 {
		opts.ReadyAttempts = 1
	}
	if opts.BlobConcurrency < 1 {
		opts.BlobConcurrency = 16
	}
	return &Orchestrator{
		credentials: credentials,
		github:      gh,
		vercel:      vc,
		opts:        opts,
		metrics:     metrics,
		logger:      logger,
		sleep:       sleepContext,
		now:         time.Now,
	}
}

// RepoName derives the repository name: lowercase, with every character
// outside [a-z0-9-] replaced by '-'.
func RepoName(projectName string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, strings.ToLower(projectName))
}

type repoTarget struct {
	token string
	owner string
	name  string
	repo  github.Repository
}

// Deploy runs the publication sequence. Any GitHub failure aborts the call;
// a failed deployment trigger only downgrades the reported Vercel status.
func (o *Orchestrator) Deploy(ctx context.Context, userID string, project domain.GeneratedProject) (result domain.DeploymentResult, err error) {
	ctx, span := tracer.Start(ctx, "deploy")
	defer func() {
		o.metrics.DeploymentFinished(outcome(err))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(userID) == "" {
		return domain.DeploymentResult{}, domain.ErrUnauthorized
	}

	ghCred, vcCred, err := o.loadCredentials(ctx, userID)
	if err != nil {
		return domain.DeploymentResult{}, err
	}

	if err := project.Validate(); err != nil {
		return domain.DeploymentResult{}, err
	}

	name := RepoName(project.ProjectName)
	span.SetAttributes(attribute.String("deploy.repo", name), attribute.Int("deploy.files", len(project.Files)))
	logger := o.log().With(zap.String("user_id", userID), zap.String("repo", name))

	// Expired tokens are still sent; there is no refresh and the upstream decides.
	now := o.now()
	for _, cred := range []domain.Credential{ghCred, vcCred} {
		if cred.Expired(now) {
			logger.Warn("using expired credential", zap.String("provider", string(cred.Provider)), zap.Timep("expires_at", cred.ExpiresAt))
		}
	}

	target, err := o.acquireRepository(ctx, ghCred.AccessToken, name, project.ProjectName)
	if err != nil {
		return domain.DeploymentResult{}, err
	}
	logger = logger.With(zap.String("owner", target.owner))

	baseSHA, err := o.baseCommit(ctx, target)
	if err != nil {
		return domain.DeploymentResult{}, err
	}

	entries, err := o.uploadBlobs(ctx, target, project)
	if err != nil {
		return domain.DeploymentResult{}, err
	}

	commitSHA, err := o.commit(ctx, target, baseSHA, entries)
	if err != nil {
		return domain.DeploymentResult{}, err
	}
	logger.Info("repository updated", zap.String("commit", commitSHA), zap.Int("files", len(entries)))

	trigger := o.triggerDeployment(ctx, vcCred.AccessToken, target)
	if !trigger.OK() {
		logger.Warn("deployment trigger failed, manual setup required", zap.Error(trigger.Err))
	}
	vercelResult := trigger.Result()
	o.metrics.DeployTriggered(vercelResult.Status)

	repoURL := target.repo.HTMLURL
	if repoURL == "" {
		repoURL = fmt.Sprintf("https://github.com/%s/%s", target.owner, target.name)
	}
	return domain.DeploymentResult{
		GitHub: domain.GitHubResult{URL: repoURL, Owner: target.owner, Repo: target.name},
		Vercel: vercelResult,
	}, nil
}

func (o *Orchestrator) loadCredentials(ctx context.Context, userID string) (domain.Credential, domain.Credential, error) {
	var ghCred, vcCred domain.Credential
	var ghErr, vcErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ghCred, ghErr = o.credentials.Get(gctx, userID, domain.ProviderGitHub)
		return nil
	})
	g.Go(func() error {
		vcCred, vcErr = o.credentials.Get(gctx, userID, domain.ProviderVercel)
		return nil
	})
	_ = g.Wait()

	if err := credentialError(domain.ProviderGitHub, ghErr); err != nil {
		return domain.Credential{}, domain.Credential{}, err
	}
	if err := credentialError(domain.ProviderVercel, vcErr); err != nil {
		return domain.Credential{}, domain.Credential{}, err
	}
	return ghCred, vcCred, nil
}

func credentialError(provider domain.Provider, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrCredentialNotFound):
		return &domain.NotConnectedError{Provider: provider}
	default:
		return fmt.Errorf("load %s credential: %w", provider, err)
	}
}

func (o *Orchestrator) acquireRepository(ctx context.Context, token, name, projectName string) (repoTarget, error) {
	ctx, span := tracer.Start(ctx, "github.acquire_repository")
	defer span.End()

	repo, err := o.github.CreateRepository(ctx, token, github.CreateRepositoryInput{
		Name:        name,
		Description: "Created with Makeit - " + projectName,
		Private:     false,
		AutoInit:    true,
	})
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("github.repo_created", true))
	case errors.Is(err, github.ErrRepositoryExists):
		span.SetAttributes(attribute.Bool("github.repo_created", false))
		owner, userErr := o.github.AuthenticatedUser(ctx, token)
		if userErr != nil {
			return repoTarget{}, fmt.Errorf("resolve repository owner: %w", userErr)
		}
		repo, err = o.github.GetRepository(ctx, token, owner, name)
		if err != nil {
			return repoTarget{}, fmt.Errorf("load existing repository: %w", err)
		}
		if repo.Owner == "" {
			repo.Owner = owner
		}
	default:
		return repoTarget{}, fmt.Errorf("create repository: %w", err)
	}

	owner := repo.Owner
	if owner == "" {
		owner, err = o.github.AuthenticatedUser(ctx, token)
		if err != nil {
			return repoTarget{}, fmt.Errorf("resolve repository owner: %w", err)
		}
	}
	return repoTarget{token: token, owner: owner, name: name, repo: repo}, nil
}

// baseCommit polls for the main branch created by auto-init and synthesizes
// an initial commit when it never shows up.
func (o *Orchestrator) baseCommit(ctx context.Context, t repoTarget) (string, error) {
	ctx, span := tracer.Start(ctx, "github.base_commit")
	defer span.End()

	for attempt := 1; attempt <= o.opts.ReadyAttempts; attempt++ {
		sha, err := o.github.GetBranchHead(ctx, t.token, t.owner, t.name, mainBranch)
		if err == nil {
			span.SetAttributes(attribute.Int("github.ready_attempts", attempt))
			return sha, nil
		}
		if !errors.Is(err, github.ErrRefNotFound) {
			return "", fmt.Errorf("get main ref: %w", err)
		}
		if attempt < o.opts.ReadyAttempts {
			if err := o.sleep(ctx, o.opts.ReadyInterval); err != nil {
				return "", err
			}
		}
	}

	span.AddEvent("initial commit")
	return o.initialCommit(ctx, t)
}

func (o *Orchestrator) initialCommit(ctx context.Context, t repoTarget) (string, error) {
	tree, err := o.github.CreateTree(ctx, t.token, t.owner, t.name, "", nil)
	if err != nil {
		return "", fmt.Errorf("create empty tree: %w", err)
	}
	sha, err := o.github.CreateCommit(ctx, t.token, t.owner, t.name, "Initial commit", tree, nil)
	if err != nil {
		return "", fmt.Errorf("create initial commit: %w", err)
	}
	if err := o.github.CreateRef(ctx, t.token, t.owner, t.name, mainRef, sha); err != nil {
		return "", fmt.Errorf("create main ref: %w", err)
	}
	return sha, nil
}

func (o *Orchestrator) uploadBlobs(ctx context.Context, t repoTarget, project domain.GeneratedProject) ([]github.TreeEntry, error) {
	ctx, span := tracer.Start(ctx, "github.upload_blobs")
	defer span.End()

	files := make([]domain.ProjectFile, 0, len(project.Files)+1)
	for _, f := range project.Files {
		clean, _ := domain.CleanFilePath(f.Path)
		files = append(files, domain.ProjectFile{Path: clean, Content: f.Content})
	}
	if !project.HasFile(manifestPath) {
		manifest, err := PackageManifest(t.name)
		if err != nil {
			return nil, err
		}
		files = append(files, domain.ProjectFile{Path: manifestPath, Content: manifest})
	}

	entries := make([]github.TreeEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.BlobConcurrency)
	for i, f := range files {
		g.Go(func() error {
			sha, err := o.github.CreateBlob(gctx, t.token, t.owner, t.name, f.Content)
			if err != nil {
				return fmt.Errorf("create blob %s: %w", f.Path, err)
			}
			entries[i] = github.TreeEntry{Path: f.Path, Mode: fileMode, Type: blobType, SHA: sha}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("github.blobs", len(entries)))
	o.metrics.BlobsUploaded(len(entries))
	return entries, nil
}

func (o *Orchestrator) commit(ctx context.Context, t repoTarget, baseSHA string, entries []github.TreeEntry) (string, error) {
	ctx, span := tracer.Start(ctx, "github.commit")
	defer span.End()

	tree, err := o.github.CreateTree(ctx, t.token, t.owner, t.name, baseSHA, entries)
	if err != nil {
		return "", fmt.Errorf("create tree: %w", err)
	}
	sha, err := o.github.CreateCommit(ctx, t.token, t.owner, t.name, commitMessage, tree, []string{baseSHA})
	if err != nil {
		return "", fmt.Errorf("create commit: %w", err)
	}
	if err := o.github.UpdateRef(ctx, t.token, t.owner, t.name, mainBranch, sha, true); err != nil {
		return "", fmt.Errorf("update main ref: %w", err)
	}
	span.SetAttributes(attribute.String("github.commit", sha))
	return sha, nil
}

func (o *Orchestrator) triggerDeployment(ctx context.Context, token string, t repoTarget) domain.TriggerOutcome {
	ctx, span := tracer.Start(ctx, "vercel.create_deployment", trace.WithAttributes(attribute.String("vercel.project", t.name)))
	defer span.End()

	dep, err := o.vercel.CreateDeployment(ctx, token, vercel.DeploymentInput{Name: t.name, RepoID: t.repo.ID, Ref: mainBranch})
	if err != nil {
		span.RecordError(err)
		return domain.TriggerOutcome{Err: err}
	}
	if dep.URL == "" {
		return domain.TriggerOutcome{Err: errors.New("vercel create deployment: response without url")}
	}
	return domain.TriggerOutcome{URL: "https://" + dep.URL}
}

func (o *Orchestrator) log() *zap.Logger {
	if o.logger != nil {
		return o.logger
	}
	return zap.L()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, domain.ErrProviderNotConnected):
		return telemetry.OutcomeNotConnected
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnauthorized):
		return telemetry.OutcomeInvalid
	case errors.Is(err, domain.ErrUpstream):
		return telemetry.OutcomeUpstream
	default:
		return telemetry.OutcomeError
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
