package bootstrap

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/wolfman30/mundos-engagement/internal/compliance"
	appconfig "github.com/wolfman30/mundos-engagement/internal/config"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// BuildAudit opens the audit trail database. Without a DSN the returned
// service is disabled and drops events.
func BuildAudit(cfg *appconfig.Config, logger *logging.Logger) (*compliance.AuditService, func(), error) {
	dsn := cfg.AuditDSN()
	if dsn == "" {
		logger.Warn("audit trail disabled; no database configured")
		return compliance.NewAuditService(nil), func() {}, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	db.SetMaxOpenConns(5)
	return compliance.NewAuditService(db), func() { _ = db.Close() }, nil
}
