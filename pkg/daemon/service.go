package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/config"
	"github.com/grovetools/conductor/errors"
	"github.com/grovetools/conductor/pkg/repoindex"
	"github.com/grovetools/conductor/pkg/scanner"
	"github.com/grovetools/conductor/pkg/sessions"
	"github.com/grovetools/conductor/pkg/workspace"
)

// Service implements the client operations against in-process components.
// The daemon's HTTP handlers and LocalClient both delegate to it.
type Service struct {
	Registry     *sessions.Registry
	Scanner      *scanner.Scanner
	ScanDefaults scanner.Options
	// ScanRoot is used when a scan request names no root.
	ScanRoot string
	// Index is nil when no repository root is configured.
	Index       *repoindex.Index
	Provisioner *sessions.Provisioner
}

// NewService wires a scanner, workspace manager, provisioner and repository
// index around registry from cfg.
func NewService(cfg *config.Config, registry *sessions.Registry, logger *logrus.Entry) *Service {
	sc := scanner.New(logger.WithField("component", "scanner"))
	scanOpts := scanner.OptionsFromConfig(cfg.Scanner)

	ws := workspace.New(workspace.OptionsFromConfig(cfg), sc, logger.WithField("component", "workspace"))
	svc := &Service{
		Registry:     registry,
		Scanner:      sc,
		ScanDefaults: scanOpts,
		ScanRoot:     cfg.ReposRoot(),
		Provisioner:  sessions.NewProvisioner(registry, ws, logger.WithField("component", "provisioner")),
	}
	if svc.ScanRoot != "" {
		ttl := config.Duration(cfg.Daemon.RepoIndexTTL, config.DefaultRepoIndexTTL)
		svc.Index = repoindex.New(sc, []string{svc.ScanRoot}, scanOpts, ttl, logger.WithField("component", "repoindex"))
	}
	return svc
}

// CreateSession registers a new session or, with req.Provision, runs the
// full provisioning flow.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (*sessions.Record, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	owner := sessions.Owner{UserID: req.UserID, GuildID: req.GuildID}

	if req.Provision {
		if s.Provisioner == nil {
			return nil, errors.New(errors.ErrCodeInternal, "provisioning is not configured")
		}
		return s.Provisioner.Provision(ctx, sessions.ProvisionRequest{
			ID:         req.ID,
			Repository: req.Repository,
			RemoteURL:  req.RemoteURL,
			Owner:      owner,
		})
	}
	return s.Registry.Create(req.ID, req.Repository, req.WorktreePath, owner)
}

// GetSession returns the session or NOT_FOUND.
func (s *Service) GetSession(_ context.Context, id string) (*sessions.Record, error) {
	rec, ok := s.Registry.Get(id)
	if !ok {
		return nil, errors.NotFound(id)
	}
	return rec, nil
}

func (s *Service) ListSessions(_ context.Context, activeOnly bool) ([]*sessions.Record, error) {
	if activeOnly {
		return s.Registry.ListActive(), nil
	}
	return s.Registry.ListAll(), nil
}

func (s *Service) ChangeState(ctx context.Context, id string, req StateChangeRequest) (*sessions.Record, error) {
	if err := s.Registry.ChangeState(id, req.State, req.Metadata); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

func (s *Service) AttachContainer(ctx context.Context, id, containerID string) (*sessions.Record, error) {
	if containerID == "" {
		return nil, errors.InvalidInput("container id cannot be empty")
	}
	if err := s.Registry.AttachContainerID(id, containerID); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

func (s *Service) Touch(ctx context.Context, id string) (*sessions.Record, error) {
	if err := s.Registry.Touch(id); err != nil {
		return nil, err
	}
	return s.GetSession(ctx, id)
}

// RemoveSession removes the session, reporting NOT_FOUND for unknown ids.
func (s *Service) RemoveSession(_ context.Context, id string) error {
	removed, err := s.Registry.Remove(id)
	if err != nil {
		return err
	}
	if !removed {
		return errors.NotFound(id)
	}
	return nil
}

// Scan runs a scan with req merged over the configured defaults.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*scanner.ScanResult, error) {
	root, opts, err := s.scanOptions(req)
	if err != nil {
		return nil, err
	}
	return s.Scanner.Scan(ctx, root, opts)
}

func (s *Service) scanOptions(req ScanRequest) (string, scanner.Options, error) {
	opts := s.ScanDefaults
	root := req.Root
	if root == "" {
		root = s.ScanRoot
	}
	if root == "" {
		return "", opts, errors.InvalidInput("scan root is required")
	}

	switch scanner.Order(req.Order) {
	case "":
	case scanner.OrderByName, scanner.OrderByRecency:
		opts.Order = scanner.Order(req.Order)
	default:
		return "", opts, errors.InvalidInput("order must be 'name' or 'recency'").WithDetail("order", req.Order)
	}
	if req.MaxDepth < 0 || req.Concurrency < 0 || req.TimeoutMs < 0 {
		return "", opts, errors.InvalidInput("maxDepth, concurrency and timeoutMs must not be negative")
	}
	if req.MaxDepth > 0 {
		opts.MaxDepth = req.MaxDepth
	}
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	if req.SkipPatterns != nil {
		opts.SkipPatterns = req.SkipPatterns
	}
	if req.TimeoutMs > 0 {
		opts.Timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	return root, opts, nil
}

// RepositoryNames returns names from the repository index.
func (s *Service) RepositoryNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	if s.Index == nil {
		return nil, errors.InvalidInput("no repository root configured (scanner.root)")
	}
	return s.Index.Names(ctx, prefix, limit)
}

// Repository looks up one indexed repository by name.
func (s *Service) Repository(ctx context.Context, name string) (*scanner.RepoMeta, error) {
	if s.Index == nil {
		return nil, errors.InvalidInput("no repository root configured (scanner.root)")
	}
	meta, ok, err := s.Index.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.RepositoryNotFound(name, s.ScanRoot)
	}
	return &meta, nil
}

// Counts returns the number of known and active sessions.
func (s *Service) Counts() (total, active int) {
	return len(s.Registry.ListAll()), len(s.Registry.ListActive())
}
