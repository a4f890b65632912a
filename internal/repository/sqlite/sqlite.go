package sqlite

import (
	"database/sql"
	"errors"
	"io"
	"strings"
	"time"

	"log/slog"

	"github.com/StoryBB/StoryBB-sub005/internal/db"
	"github.com/StoryBB/StoryBB-sub005/pkg/repository"
)

// SQLiteRepo implements repository interfaces using the internal DB wrapper.
type SQLiteRepo struct {
	conn   *db.DB
	logger *slog.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.Store = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *slog.Logger) *SQLiteRepo {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &SQLiteRepo{conn: conn, logger: logger}
}

func now() int64 {
	return time.Now().UTC().Unix()
}

// notFound reports whether err means "no row"; callers return (nil, nil) then.
func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// inClause expands ids into "?,?,?" and the matching args.
func inClause(ids []int64) (string, []any) {
	if len(ids) == 0 {
		return "NULL", nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
