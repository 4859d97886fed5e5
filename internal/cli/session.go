package cli

import (
	"fmt"
	"time"

	"github.com/gzhole/lca/internal/config"
	"github.com/gzhole/lca/internal/logger"
	"github.com/gzhole/lca/internal/pathguard"
	"github.com/gzhole/lca/internal/policy"
)

// session is everything one lca invocation works against. The audit log is
// opened only by commands that write to it.
type session struct {
	cfg    *config.Config
	guard  *pathguard.Guard
	policy *policy.Policy
	packs  []policy.PackInfo
	audit  *logger.AuditLogger
}

func loadSession(timeout time.Duration, nonInteractive bool) (*session, error) {
	cfg, err := config.Load(config.Flags{
		WorkDir:        workDir,
		PolicyPath:     policyPath,
		LogDir:         logDir,
		Timeout:        timeout,
		NonInteractive: nonInteractive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	guard, err := pathguard.New(cfg.WorkDir, pathguard.Protect(cfg.ProtectedPaths()...))
	if err != nil {
		return nil, fmt.Errorf("invalid workspace root: %w", err)
	}

	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	pol, packs, err := policy.LoadPacks(cfg.PacksDir, pol)
	if err != nil {
		return nil, fmt.Errorf("failed to load packs: %w", err)
	}

	return &session{cfg: cfg, guard: guard, policy: pol, packs: packs}, nil
}

func (s *session) openAudit() error {
	audit, err := logger.New(s.cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	s.audit = audit
	return nil
}

func (s *session) Close() error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Close()
}

// closeSession closes s and reports a close failure through errp unless a
// failure is already being returned.
func closeSession(s *session, errp *error) {
	if err := s.Close(); err != nil && *errp == nil {
		*errp = fmt.Errorf("failed to close audit log: %w", err)
	}
}
