// Package service coordinates omni's subsystems into the operations a CLI
// or other caller actually invokes: `up`, `down`, `status`, and the
// background `cleanup` pass.
//
// It sits between cmd/ (argument parsing, prompts, terminal output) and
// the library packages (internal/envcache, internal/up, internal/syncop,
// internal/dynenv): cmd/ never opens a database or acquires a lock
// directly, it calls a Service method and renders what comes back. This
// keeps the library packages themselves free of CLI concerns, the same
// separation the teacher's own service layer draws between its CLI and
// business-logic tiers.
package service

import (
	"fmt"
	"path/filepath"

	"omni/internal/config"
	"omni/internal/envcache"
	"omni/internal/logging"
)

// Service owns the long-lived resources one omni invocation needs: the
// process-wide settings, the multi-sink logger, and the ENVCACHE database
// connection. Callers construct one Service per process and Close it on
// exit.
type Service struct {
	cfg    *config.Settings
	logger *logging.MultiLogger
	db     *envcache.DB
}

// NewService opens the ENVCACHE database and the log sinks described by
// cfg, returning a Service ready for Up/Down/Status/Cleanup. The caller
// must call Close when done.
func NewService(cfg *config.Settings) (*Service, error) {
	logger, err := logging.Open(filepath.Join(cfg.DataHome, "logs"))
	if err != nil {
		return nil, fmt.Errorf("service: open logs: %w", err)
	}

	db, err := envcache.Open(cfg.CacheDBPath(), cfg.SQLiteBusyTimeout)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("service: open envcache: %w", err)
	}

	return &Service{cfg: cfg, logger: logger, db: db}, nil
}

// Close releases the database connection and log sinks.
func (s *Service) Close() error {
	var dbErr, logErr error
	if s.db != nil {
		dbErr = s.db.Close()
	}
	if s.logger != nil {
		logErr = s.logger.Close()
	}
	if dbErr != nil {
		return fmt.Errorf("service: close envcache: %w", dbErr)
	}
	if logErr != nil {
		return fmt.Errorf("service: close logs: %w", logErr)
	}
	return nil
}

// Config returns the service's settings.
func (s *Service) Config() *config.Settings { return s.cfg }

// Logger returns the service's multi-sink logger.
func (s *Service) Logger() *logging.MultiLogger { return s.logger }

// Database returns the service's ENVCACHE handle, for callers that need
// direct read access without a full up/down/status round trip.
func (s *Service) Database() *envcache.DB { return s.db }

func (s *Service) retention() envcache.RetentionPolicy {
	return envcache.RetentionPolicy{
		MaxPerWorkdir: s.cfg.MaxPerWorkdir,
		MaxTotal:      s.cfg.MaxTotal,
		Retention:     s.cfg.Retention,
	}
}
