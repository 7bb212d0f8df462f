package sessions

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/grovetools/conductor/errors"
)

// Workspace materialises the checkout a session works in.
type Workspace interface {
	EnsureRepository(ctx context.Context, name, remoteURL string) (string, error)
	PrepareWorktree(ctx context.Context, repoPath, sessionID string) (string, error)
}

// ProvisionRequest describes a session to create and prepare.
type ProvisionRequest struct {
	ID         string
	Repository string
	RemoteURL  string
	Owner      Owner
}

// Provisioner drives a new session from INITIALIZING to READY.
type Provisioner struct {
	registry  *Registry
	workspace Workspace
	logger    *logrus.Entry
}

// NewProvisioner creates a provisioner.
func NewProvisioner(registry *Registry, workspace Workspace, logger *logrus.Entry) *Provisioner {
	return &Provisioner{registry: registry, workspace: workspace, logger: logger}
}

// Provision creates the session, locates or clones its repository,
// prepares a worktree and marks it READY. Once the session exists, any
// failure moves it to ERROR with the failure as reason; the error is still
// returned.
func (p *Provisioner) Provision(ctx context.Context, req ProvisionRequest) (*Record, error) {
	if req.Repository == "" {
		return nil, errors.InvalidInput("repository cannot be empty")
	}
	if _, err := p.registry.Create(req.ID, req.Repository, "", req.Owner); err != nil {
		return nil, err
	}
	log := p.logger.WithFields(logrus.Fields{"session_id": req.ID, "repository": req.Repository})

	fail := func(err error) (*Record, error) {
		log.WithError(err).Warn("Provisioning failed")
		if cerr := p.registry.ChangeState(req.ID, StateError, map[string]string{"reason": err.Error()}); cerr != nil {
			log.WithError(cerr).Warn("Could not mark session as failed")
		}
		return nil, err
	}

	if err := p.registry.ChangeState(req.ID, StateStarting, nil); err != nil {
		return fail(err)
	}

	repoPath, err := p.workspace.EnsureRepository(ctx, req.Repository, req.RemoteURL)
	if err != nil {
		return fail(err)
	}
	worktree, err := p.workspace.PrepareWorktree(ctx, repoPath, req.ID)
	if err != nil {
		return fail(err)
	}
	if err := p.registry.SetWorktree(req.ID, worktree); err != nil {
		return fail(err)
	}
	if err := p.registry.ChangeState(req.ID, StateReady, nil); err != nil {
		return fail(err)
	}

	log.WithField("worktree", worktree).Info("Session ready")
	rec, _ := p.registry.Get(req.ID)
	return rec, nil
}
