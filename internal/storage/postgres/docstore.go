package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/docstore"
)

const maxTxAttempts = 3

// pgErrSerializationFailure и pgErrDeadlockDetected — коды, после которых
// serializable-транзакцию безопасно повторить.
const (
	pgErrSerializationFailure = "40001"
	pgErrDeadlockDetected     = "40P01"
)

var orderFieldPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// DocStore реализует docstore.Store поверх таблицы documents.
type DocStore struct {
	store  *Store
	logger *log.Entry
}

// NewDocStore создаёт документное хранилище поверх открытого подключения.
func NewDocStore(store *Store, logger *log.Entry) *DocStore {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &DocStore{
		store:  store,
		logger: logger.WithField("component", "postgres_docstore"),
	}
}

// Get возвращает документ или docstore.ErrNotFound.
func (d *DocStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	var doc docstore.Document
	doc.ID = id
	err := d.store.db.QueryRowContext(ctx, `
		SELECT data, version, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
	`, collection, id).Scan(&doc.Data, &doc.Version, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Query выполняет выборку. Фильтры равенства транслируются в jsonb
// containment, сортировка идёт по текстовому представлению поля.
func (d *DocStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, data, version, updated_at FROM documents WHERE collection = $1`)
	args = append(args, q.Collection)

	for _, f := range q.Filters {
		probe, err := json.Marshal(map[string]any{f.Field: f.Value})
		if err != nil {
			return nil, fmt.Errorf("marshal filter %s: %w", f.Field, err)
		}
		args = append(args, string(probe))
		fmt.Fprintf(&sb, " AND data @> $%d::jsonb", len(args))
	}

	if q.OrderBy != "" {
		if !orderFieldPattern.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field: %s", q.OrderBy)
		}
		direction := "ASC"
		if q.Desc {
			direction = "DESC"
		}
		fmt.Fprintf(&sb, " ORDER BY data->>'%s' %s", q.OrderBy, direction)
	} else {
		sb.WriteString(" ORDER BY id ASC")
	}

	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := d.store.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var doc docstore.Document
		if err := rows.Scan(&doc.ID, &doc.Data, &doc.Version, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection %s: %w", q.Collection, err)
	}
	return docs, nil
}

// RunTransaction выполняет fn в serializable-транзакции и повторяет её
// при сбое сериализации, но не более maxTxAttempts раз.
func (d *DocStore) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := d.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryableTxError(err) {
			return err
		}
		d.logger.WithError(err).WithField("attempt", attempt).
			Warn("transaction serialization failure, retrying")
	}
	return docstore.ErrTxConflict
}

func (d *DocStore) runOnce(ctx context.Context, fn func(tx docstore.Tx) error) error {
	sqlTx, err := d.store.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	tx := &pgTx{ctx: ctx, tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgErrSerializationFailure || pgErr.Code == pgErrDeadlockDetected
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) Get(collection, id string) (docstore.Document, error) {
	var doc docstore.Document
	doc.ID = id
	err := t.tx.QueryRowContext(t.ctx, `
		SELECT data, version, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2
		FOR UPDATE
	`, collection, id).Scan(&doc.Data, &doc.Version, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Document{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("tx get document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (t *pgTx) Create(collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}
	res, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("create document %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create document %s/%s: rows affected: %w", collection, id, err)
	}
	if affected == 0 {
		return docstore.ErrExists
	}
	return nil
}

func (t *pgTx) Set(collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (collection, id, data, version, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (collection, id) DO UPDATE
		SET data = EXCLUDED.data,
		    version = documents.version + 1,
		    updated_at = NOW()
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("set document %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *pgTx) Update(collection, id string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %s/%s: %w", collection, id, err)
	}
	res, err := t.tx.ExecContext(t.ctx, `
		UPDATE documents
		SET data = $3, version = version + 1, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, data)
	if err != nil {
		return fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document %s/%s: rows affected: %w", collection, id, err)
	}
	if affected == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (t *pgTx) Delete(collection, id string) error {
	if _, err := t.tx.ExecContext(t.ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, collection, id); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}
