package service

import (
	"context"

	"omni/internal/up"
	"omni/internal/workdir"
)

// Down removes opts.WorkdirPath's assigned environment's per-workdir
// annotations (spec.md §4.2: "does not physically uninstall") and clears
// ENVCACHE's active-environment pointer for it.
func (s *Service) Down(ctx context.Context, opts DownOptions, progress up.Progress) (*DownResult, error) {
	dir := opts.WorkdirPath
	if dir == "" {
		dir = "."
	}

	id, err := workdir.Resolve(dir)
	if err != nil {
		return nil, err
	}
	workdirID := string(id)

	env, err := s.db.GetEnv(ctx, workdirID)
	if err != nil {
		return nil, err
	}

	executor := &up.Executor{Store: s.db, Retention: s.retention()}
	if env != nil {
		if err := executor.Down(ctx, env.Versions, progress); err != nil {
			return nil, err
		}
	}

	cleared, err := s.db.Clear(ctx, workdirID)
	if err != nil {
		return nil, err
	}
	s.logger.History("down %s (cleared=%v)", workdirID, cleared)

	return &DownResult{WorkdirID: workdirID, Cleared: cleared}, nil
}
