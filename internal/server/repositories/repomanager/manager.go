package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tguard/internal/dbx"
	"github.com/dmitrijs2005/tguard/internal/server/repositories/messages"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Messages(db dbx.DBTX) messages.Repository
}
