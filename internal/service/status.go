package service

import (
	"context"

	"omni/internal/workdir"
)

// Status reports opts.WorkdirPath's currently-assigned environment, or a
// nil Env when `up` has never been run (or was `down`'d) for it.
func (s *Service) Status(ctx context.Context, opts StatusOptions) (*StatusResult, error) {
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

	return &StatusResult{WorkdirID: workdirID, Env: env}, nil
}
