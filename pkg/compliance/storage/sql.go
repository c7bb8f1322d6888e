package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"mercator-hq/custodian/pkg/compliance"
)

// sqliteTimeLayout is a fixed-width UTC layout; lexical order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// dialect captures the differences between the SQL backends.
type dialect struct {
	name     string
	schema   []string
	nativeTS bool // driver binds and scans time.Time directly
}

var (
	sqliteDialect   = &dialect{name: "sqlite", schema: sqliteSchema}
	postgresDialect = &dialect{name: "postgres", schema: postgresSchema, nativeTS: true}
)

func (d *dialect) ts(t time.Time) any {
	if d.nativeTS {
		return t.UTC()
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func (d *dialect) nullTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return d.ts(*t)
}

// dbTime scans TEXT and native timestamp columns alike.
type dbTime struct {
	T     time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (n *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		n.T, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.T, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into timestamp", src)
}

func (n *dbTime) parse(s string) error {
	for _, layout := range []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			n.T, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (n dbTime) ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.T
	return &t
}

// PoolConfig tunes the database/sql connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLStorage implements compliance.Storage on top of database/sql through
// sqlx. It serves both SQLite and PostgreSQL; queries are written with '?'
// placeholders and rebound for the driver in use.
type SQLStorage struct {
	db      *sqlx.DB
	dialect *dialect
	logger  *slog.Logger
	now     func() time.Time
}

func openSQL(ctx context.Context, driver, dsn string, d *dialect, pool PoolConfig, logger *slog.Logger) (*SQLStorage, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, compliance.NewStorageError(d.name, "open", err)
	}

	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	s := &SQLStorage{
		db:      db,
		dialect: d,
		logger:  logger,
		now:     time.Now,
	}

	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the schema and verifies its version.
func (s *SQLStorage) initialize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.storageErr("ping", err)
	}

	for i, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return s.storageErr("create_schema", fmt.Errorf("statement %d: %w", i, err))
		}
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.ExecContext(ctx, s.db.Rebind(insertSchemaVersion), SchemaVersion, s.dialect.ts(s.now())); err != nil {
		return s.storageErr("insert_schema_version", err)
	}

	var version int
	if err := s.db.GetContext(ctx, &version, selectSchemaVersion); err != nil {
		return s.storageErr("get_schema_version", err)
	}
	if version != SchemaVersion {
		return s.storageErr("schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)
	return nil
}

// Backend implements compliance.Storage.
func (s *SQLStorage) Backend() string { return s.dialect.name }

// Ping implements compliance.Storage.
func (s *SQLStorage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.storageErr("ping", err)
	}
	return nil
}

// Close implements compliance.Storage.
func (s *SQLStorage) Close() error {
	s.logger.Info("closing storage")
	return s.db.Close()
}

func (s *SQLStorage) storageErr(op string, err error) error {
	return compliance.NewStorageError(s.dialect.name, op, err)
}

// withTx runs fn inside a transaction and commits if it returns nil.
func (s *SQLStorage) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return s.storageErr(op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.storageErr(op, err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func likeContains(quotedValue string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(quotedValue) + "%"
}

func limitOffset(limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return "", nil
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	return " LIMIT ? OFFSET ?", []any{limit, offset}
}

// ---- detections ----

const detectionColumns = `id, document_id, honey_jar_id, user_id,
	pii_type, risk_level, confidence_score, span_start, span_end, context_hash, value_hash, frameworks, detection_mode,
	detected_at, expires_at, processed, notified, deleted_at, deletion_request_id,
	flagged_for_review, flagged_by, flagged_at, flag_reason, admin_notes, severity_override, action_required,
	review_status, reviewed_by, reviewed_at,
	version, created_at, updated_at`

type detectionRow struct {
	ID                string  `db:"id"`
	DocumentID        string  `db:"document_id"`
	HoneyJarID        string  `db:"honey_jar_id"`
	UserID            string  `db:"user_id"`
	PIIType           string  `db:"pii_type"`
	RiskLevel         string  `db:"risk_level"`
	ConfidenceScore   float64 `db:"confidence_score"`
	SpanStart         int     `db:"span_start"`
	SpanEnd           int     `db:"span_end"`
	ContextHash       string  `db:"context_hash"`
	ValueHash         string  `db:"value_hash"`
	Frameworks        string  `db:"frameworks"`
	DetectionMode     string  `db:"detection_mode"`
	DetectedAt        dbTime  `db:"detected_at"`
	ExpiresAt         dbTime  `db:"expires_at"`
	Processed         bool    `db:"processed"`
	Notified          bool    `db:"notified"`
	DeletedAt         dbTime  `db:"deleted_at"`
	DeletionRequestID string  `db:"deletion_request_id"`
	FlaggedForReview  bool    `db:"flagged_for_review"`
	FlaggedBy         string  `db:"flagged_by"`
	FlaggedAt         dbTime  `db:"flagged_at"`
	FlagReason        string  `db:"flag_reason"`
	AdminNotes        string  `db:"admin_notes"`
	SeverityOverride  string  `db:"severity_override"`
	ActionRequired    string  `db:"action_required"`
	ReviewStatus      string  `db:"review_status"`
	ReviewedBy        string  `db:"reviewed_by"`
	ReviewedAt        dbTime  `db:"reviewed_at"`
	Version           int64   `db:"version"`
	CreatedAt         dbTime  `db:"created_at"`
	UpdatedAt         dbTime  `db:"updated_at"`
}

func (r *detectionRow) record() *compliance.DetectionRecord {
	var frameworks []string
	_ = json.Unmarshal([]byte(r.Frameworks), &frameworks)

	return &compliance.DetectionRecord{
		ID:                r.ID,
		DocumentID:        r.DocumentID,
		HoneyJarID:        r.HoneyJarID,
		UserID:            r.UserID,
		PIIType:           r.PIIType,
		RiskLevel:         compliance.RiskLevel(r.RiskLevel),
		ConfidenceScore:   r.ConfidenceScore,
		SpanStart:         r.SpanStart,
		SpanEnd:           r.SpanEnd,
		ContextHash:       r.ContextHash,
		ValueHash:         r.ValueHash,
		Frameworks:        frameworks,
		DetectionMode:     compliance.DetectionMode(r.DetectionMode),
		DetectedAt:        r.DetectedAt.T,
		ExpiresAt:         r.ExpiresAt.T,
		Processed:         r.Processed,
		Notified:          r.Notified,
		DeletedAt:         r.DeletedAt.ptr(),
		DeletionRequestID: r.DeletionRequestID,
		FlaggedForReview:  r.FlaggedForReview,
		FlaggedBy:         r.FlaggedBy,
		FlaggedAt:         r.FlaggedAt.ptr(),
		FlagReason:        r.FlagReason,
		AdminNotes:        r.AdminNotes,
		SeverityOverride:  compliance.RiskLevel(r.SeverityOverride),
		ActionRequired:    r.ActionRequired,
		ReviewStatus:      compliance.ReviewStatus(r.ReviewStatus),
		ReviewedBy:        r.ReviewedBy,
		ReviewedAt:        r.ReviewedAt.ptr(),
		Version:           r.Version,
		CreatedAt:         r.CreatedAt.T,
		UpdatedAt:         r.UpdatedAt.T,
	}
}

// InsertDetection implements compliance.DetectionStore.
func (s *SQLStorage) InsertDetection(ctx context.Context, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	frameworks, err := json.Marshal(rec.Frameworks)
	if err != nil {
		return s.storageErr("insert_detection", err)
	}
	now := s.now().UTC()
	d := s.dialect

	query := s.db.Rebind(`INSERT INTO detection_records (` + detectionColumns + `) VALUES (` + placeholders(32) + `)`)

	return s.withTx(ctx, "insert_detection", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			rec.ID, rec.DocumentID, rec.HoneyJarID, rec.UserID,
			rec.PIIType, string(rec.RiskLevel), rec.ConfidenceScore, rec.SpanStart, rec.SpanEnd, rec.ContextHash, rec.ValueHash, string(frameworks), string(rec.DetectionMode),
			d.ts(rec.DetectedAt), d.ts(rec.ExpiresAt), rec.Processed, rec.Notified, d.nullTS(rec.DeletedAt), rec.DeletionRequestID,
			rec.FlaggedForReview, rec.FlaggedBy, d.nullTS(rec.FlaggedAt), rec.FlagReason, rec.AdminNotes, string(rec.SeverityOverride), rec.ActionRequired,
			string(rec.ReviewStatus), rec.ReviewedBy, d.nullTS(rec.ReviewedAt),
			1, d.ts(now), d.ts(now),
		)
		if err != nil {
			return s.storageErr("insert_detection", err)
		}
		if err := s.insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		rec.Version = 1
		rec.CreatedAt = now
		rec.UpdatedAt = now
		return nil
	})
}

// GetDetection implements compliance.DetectionStore.
func (s *SQLStorage) GetDetection(ctx context.Context, id string) (*compliance.DetectionRecord, error) {
	var row detectionRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+detectionColumns+` FROM detection_records WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compliance.NewNotFoundError("detection", id)
	}
	if err != nil {
		return nil, s.storageErr("get_detection", err)
	}
	return row.record(), nil
}

// QueryDetections implements compliance.DetectionStore.
func (s *SQLStorage) QueryDetections(ctx context.Context, q *compliance.DetectionQuery) ([]*compliance.DetectionRecord, error) {
	where, args := s.detectionWhere(q, true)

	order := " ORDER BY detected_at DESC, id ASC"
	if q.Order == compliance.OrderExpiresAsc {
		order = " ORDER BY expires_at ASC, id ASC"
	}
	page, pageArgs := limitOffset(q.Limit, q.Offset)

	query := s.db.Rebind(`SELECT ` + detectionColumns + ` FROM detection_records` + where + order + page)

	var rows []detectionRow
	if err := s.db.SelectContext(ctx, &rows, query, append(args, pageArgs...)...); err != nil {
		return nil, s.storageErr("query_detections", err)
	}

	out := make([]*compliance.DetectionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].record())
	}
	return out, nil
}

// CountDetections implements compliance.DetectionStore.
func (s *SQLStorage) CountDetections(ctx context.Context, q *compliance.DetectionQuery) (int64, error) {
	where, args := s.detectionWhere(q, false)

	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM detection_records`+where), args...); err != nil {
		return 0, s.storageErr("count_detections", err)
	}
	return n, nil
}

func (s *SQLStorage) detectionWhere(q *compliance.DetectionQuery, withCursor bool) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, vals ...any) {
		conds = append(conds, cond)
		args = append(args, vals...)
	}
	d := s.dialect

	switch {
	case q.DeletedOnly:
		add("deleted_at IS NOT NULL")
	case !q.IncludeDeleted:
		add("deleted_at IS NULL")
	}
	if q.UserID != "" {
		add("user_id = ?", q.UserID)
	}
	if q.DocumentID != "" {
		add("document_id = ?", q.DocumentID)
	}
	if q.HoneyJarID != "" {
		add("honey_jar_id = ?", q.HoneyJarID)
	}
	if len(q.PIITypes) > 0 {
		vals := make([]any, len(q.PIITypes))
		for i, t := range q.PIITypes {
			vals[i] = t
		}
		add("pii_type IN ("+placeholders(len(vals))+")", vals...)
	}
	if q.RiskLevel != "" {
		add("risk_level = ?", string(q.RiskLevel))
	}
	if q.Framework != "" {
		add(`frameworks LIKE ? ESCAPE '\'`, likeContains(`"`+q.Framework+`"`))
	}
	if q.ReviewStatus != "" {
		add("review_status = ?", string(q.ReviewStatus))
	}
	if q.FlaggedOnly {
		add("flagged_for_review = ?", true)
	}
	if q.DeletionRequestID != "" {
		add("deletion_request_id = ?", q.DeletionRequestID)
	}
	if q.DetectedFrom != nil {
		add("detected_at >= ?", d.ts(*q.DetectedFrom))
	}
	if q.DetectedTo != nil {
		add("detected_at <= ?", d.ts(*q.DetectedTo))
	}
	if q.ExpiresFrom != nil {
		add("expires_at >= ?", d.ts(*q.ExpiresFrom))
	}
	if q.ExpiresTo != nil {
		add("expires_at <= ?", d.ts(*q.ExpiresTo))
	}
	if withCursor && q.Order == compliance.OrderExpiresAsc && q.AfterExpiresAt != nil {
		after := d.ts(*q.AfterExpiresAt)
		add("(expires_at > ? OR (expires_at = ? AND id > ?))", after, after, q.AfterID)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// UpdateDetection implements compliance.DetectionStore.
func (s *SQLStorage) UpdateDetection(ctx context.Context, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	return s.withTx(ctx, "update_detection", func(tx *sqlx.Tx) error {
		return s.updateDetectionTx(ctx, tx, rec, entry)
	})
}

const updateDetectionSQL = `UPDATE detection_records SET
	document_id = ?, honey_jar_id = ?, risk_level = ?, confidence_score = ?, detection_mode = ?,
	processed = ?, notified = ?, deleted_at = ?, deletion_request_id = ?,
	flagged_for_review = ?, flagged_by = ?, flagged_at = ?, flag_reason = ?, admin_notes = ?,
	severity_override = ?, action_required = ?, review_status = ?, reviewed_by = ?, reviewed_at = ?,
	version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`

func (s *SQLStorage) updateDetectionTx(ctx context.Context, tx *sqlx.Tx, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	now := s.now().UTC()
	d := s.dialect

	res, err := tx.ExecContext(ctx, s.db.Rebind(updateDetectionSQL),
		rec.DocumentID, rec.HoneyJarID, string(rec.RiskLevel), rec.ConfidenceScore, string(rec.DetectionMode),
		rec.Processed, rec.Notified, d.nullTS(rec.DeletedAt), rec.DeletionRequestID,
		rec.FlaggedForReview, rec.FlaggedBy, d.nullTS(rec.FlaggedAt), rec.FlagReason, rec.AdminNotes,
		string(rec.SeverityOverride), rec.ActionRequired, string(rec.ReviewStatus), rec.ReviewedBy, d.nullTS(rec.ReviewedAt),
		d.ts(now),
		rec.ID, rec.Version,
	)
	if err != nil {
		return s.storageErr("update_detection", err)
	}
	if err := s.checkVersioned(ctx, tx, res, "detection", "detection_records", rec.ID, rec.Version); err != nil {
		return err
	}
	if err := s.insertAudit(ctx, tx, entry); err != nil {
		return err
	}
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

// EraseForRequest implements compliance.RequestStore. The guarded counter
// update takes the request row lock first, so a concurrent reject either
// commits before it (and the erase is refused) or waits for it.
func (s *SQLStorage) EraseForRequest(ctx context.Context, requestID string, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	claim := s.db.Rebind(`UPDATE deletion_requests SET
		records_deleted = records_deleted + 1, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`)

	return s.withTx(ctx, "erase_for_request", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, claim, s.dialect.ts(s.now().UTC()), requestID, string(compliance.StatusProcessing))
		if err != nil {
			return s.storageErr("erase_for_request", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return s.storageErr("rows_affected", err)
		}
		if n == 0 {
			var status string
			err := tx.GetContext(ctx, &status, s.db.Rebind(`SELECT status FROM deletion_requests WHERE id = ?`), requestID)
			if errors.Is(err, sql.ErrNoRows) {
				return compliance.NewNotFoundError("deletion_request", requestID)
			}
			if err != nil {
				return s.storageErr("erase_for_request", err)
			}
			return compliance.NewInvalidTransitionError("deletion_request", requestID, status, string(compliance.StatusProcessing))
		}
		return s.updateDetectionTx(ctx, tx, rec, entry)
	})
}

// checkVersioned turns a zero-row optimistic update into NotFound or Conflict.
func (s *SQLStorage) checkVersioned(ctx context.Context, tx *sqlx.Tx, res sql.Result, kind, table, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return s.storageErr("rows_affected", err)
	}
	if n > 0 {
		return nil
	}

	var current int64
	err = tx.GetContext(ctx, &current, s.db.Rebind(`SELECT version FROM `+table+` WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return compliance.NewNotFoundError(kind, id)
	}
	if err != nil {
		return s.storageErr("check_version", err)
	}
	return compliance.NewConcurrencyConflictError(kind, id, version)
}

// ---- policies ----

const policyColumns = `id, framework, pii_type, retention_days, grace_period_days, auto_deletion,
	immediate_deletion_on_request, active, effective_date, description, created_at, updated_at`

type policyRow struct {
	ID                         string `db:"id"`
	Framework                  string `db:"framework"`
	PIIType                    string `db:"pii_type"`
	RetentionDays              int    `db:"retention_days"`
	GracePeriodDays            int    `db:"grace_period_days"`
	AutoDeletion               bool   `db:"auto_deletion"`
	ImmediateDeletionOnRequest bool   `db:"immediate_deletion_on_request"`
	Active                     bool   `db:"active"`
	EffectiveDate              dbTime `db:"effective_date"`
	Description                string `db:"description"`
	CreatedAt                  dbTime `db:"created_at"`
	UpdatedAt                  dbTime `db:"updated_at"`
}

func (r *policyRow) policy() *compliance.RetentionPolicy {
	return &compliance.RetentionPolicy{
		ID:                         r.ID,
		Framework:                  r.Framework,
		PIIType:                    r.PIIType,
		RetentionDays:              r.RetentionDays,
		GracePeriodDays:            r.GracePeriodDays,
		AutoDeletion:               r.AutoDeletion,
		ImmediateDeletionOnRequest: r.ImmediateDeletionOnRequest,
		Active:                     r.Active,
		EffectiveDate:              r.EffectiveDate.T,
		Description:                r.Description,
		CreatedAt:                  r.CreatedAt.T,
		UpdatedAt:                  r.UpdatedAt.T,
	}
}

// UpsertPolicy implements compliance.PolicyStore.
func (s *SQLStorage) UpsertPolicy(ctx context.Context, p *compliance.RetentionPolicy, entry *compliance.AuditEntry) (*compliance.RetentionPolicy, error) {
	now := s.now().UTC()
	d := s.dialect
	effective := p.EffectiveDate
	if effective.IsZero() {
		effective = now
	}
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	upsert := s.db.Rebind(`INSERT INTO retention_policies (` + policyColumns + `) VALUES (` + placeholders(12) + `)
		ON CONFLICT (framework, pii_type) DO UPDATE SET
			retention_days = excluded.retention_days,
			grace_period_days = excluded.grace_period_days,
			auto_deletion = excluded.auto_deletion,
			immediate_deletion_on_request = excluded.immediate_deletion_on_request,
			active = excluded.active,
			effective_date = excluded.effective_date,
			description = excluded.description,
			updated_at = excluded.updated_at`)

	var stored *compliance.RetentionPolicy
	err := s.withTx(ctx, "upsert_policy", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, upsert,
			id, p.Framework, p.PIIType, p.RetentionDays, p.GracePeriodDays, p.AutoDeletion,
			p.ImmediateDeletionOnRequest, p.Active, d.ts(effective), p.Description, d.ts(now), d.ts(now),
		)
		if err != nil {
			return s.storageErr("upsert_policy", err)
		}

		var row policyRow
		err = tx.GetContext(ctx, &row, s.db.Rebind(`SELECT `+policyColumns+` FROM retention_policies WHERE framework = ? AND pii_type = ?`), p.Framework, p.PIIType)
		if err != nil {
			return s.storageErr("upsert_policy", err)
		}
		stored = row.policy()

		if entry != nil {
			entry.PolicyID = stored.ID
		}
		return s.insertAudit(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetPolicy implements compliance.PolicyStore.
func (s *SQLStorage) GetPolicy(ctx context.Context, framework, piiType string) (*compliance.RetentionPolicy, error) {
	var row policyRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+policyColumns+` FROM retention_policies WHERE framework = ? AND pii_type = ?`), framework, piiType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compliance.NewNotFoundError("policy", policyLabel(framework, piiType))
	}
	if err != nil {
		return nil, s.storageErr("get_policy", err)
	}
	return row.policy(), nil
}

// ListPolicies implements compliance.PolicyStore.
func (s *SQLStorage) ListPolicies(ctx context.Context) ([]*compliance.RetentionPolicy, error) {
	var rows []policyRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+policyColumns+` FROM retention_policies ORDER BY framework, pii_type`); err != nil {
		return nil, s.storageErr("list_policies", err)
	}
	out := make([]*compliance.RetentionPolicy, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].policy())
	}
	return out, nil
}

// DeletePolicy implements compliance.PolicyStore.
func (s *SQLStorage) DeletePolicy(ctx context.Context, framework, piiType string, entry *compliance.AuditEntry) error {
	return s.withTx(ctx, "delete_policy", func(tx *sqlx.Tx) error {
		var id string
		err := tx.GetContext(ctx, &id, s.db.Rebind(`SELECT id FROM retention_policies WHERE framework = ? AND pii_type = ?`), framework, piiType)
		if errors.Is(err, sql.ErrNoRows) {
			return compliance.NewNotFoundError("policy", policyLabel(framework, piiType))
		}
		if err != nil {
			return s.storageErr("delete_policy", err)
		}

		if _, err := tx.ExecContext(ctx, s.db.Rebind(`DELETE FROM retention_policies WHERE id = ?`), id); err != nil {
			return s.storageErr("delete_policy", err)
		}
		if entry != nil {
			entry.PolicyID = id
		}
		return s.insertAudit(ctx, tx, entry)
	})
}

// ---- deletion requests ----

const requestColumns = `id, request_type, requester, submitted_by, scope, pii_types, range_from, range_to,
	status, reason, deadline_at, verification_token_hash, verification_required, verified_at,
	records_deleted, report, started_at, completed_at, version, created_at, updated_at`

type requestRow struct {
	ID                    string `db:"id"`
	Type                  string `db:"request_type"`
	Requester             string `db:"requester"`
	SubmittedBy           string `db:"submitted_by"`
	Scope                 string `db:"scope"`
	PIITypes              string `db:"pii_types"`
	From                  dbTime `db:"range_from"`
	To                    dbTime `db:"range_to"`
	Status                string `db:"status"`
	Reason                string `db:"reason"`
	DeadlineAt            dbTime `db:"deadline_at"`
	VerificationTokenHash string `db:"verification_token_hash"`
	VerificationRequired  bool   `db:"verification_required"`
	VerifiedAt            dbTime `db:"verified_at"`
	RecordsDeleted        int    `db:"records_deleted"`
	Report                string `db:"report"`
	StartedAt             dbTime `db:"started_at"`
	CompletedAt           dbTime `db:"completed_at"`
	Version               int64  `db:"version"`
	CreatedAt             dbTime `db:"created_at"`
	UpdatedAt             dbTime `db:"updated_at"`
}

func (r *requestRow) request() *compliance.DeletionRequest {
	var types []string
	_ = json.Unmarshal([]byte(r.PIITypes), &types)

	var report *compliance.DeletionReport
	if r.Report != "" {
		report = &compliance.DeletionReport{}
		if err := json.Unmarshal([]byte(r.Report), report); err != nil {
			report = nil
		}
	}

	return &compliance.DeletionRequest{
		ID:                    r.ID,
		Type:                  compliance.RequestType(r.Type),
		Requester:             r.Requester,
		SubmittedBy:           r.SubmittedBy,
		Scope:                 compliance.RequestScope(r.Scope),
		PIITypes:              types,
		From:                  r.From.ptr(),
		To:                    r.To.ptr(),
		Status:                compliance.RequestStatus(r.Status),
		Reason:                r.Reason,
		DeadlineAt:            r.DeadlineAt.T,
		VerificationTokenHash: r.VerificationTokenHash,
		VerificationRequired:  r.VerificationRequired,
		VerifiedAt:            r.VerifiedAt.ptr(),
		RecordsDeleted:        r.RecordsDeleted,
		Report:                report,
		StartedAt:             r.StartedAt.ptr(),
		CompletedAt:           r.CompletedAt.ptr(),
		Version:               r.Version,
		CreatedAt:             r.CreatedAt.T,
		UpdatedAt:             r.UpdatedAt.T,
	}
}

func encodeRequestJSON(r *compliance.DeletionRequest) (types string, report string, err error) {
	tb, err := json.Marshal(r.PIITypes)
	if err != nil {
		return "", "", err
	}
	if r.PIITypes == nil {
		tb = []byte("[]")
	}
	if r.Report != nil {
		rb, err := json.Marshal(r.Report)
		if err != nil {
			return "", "", err
		}
		report = string(rb)
	}
	return string(tb), report, nil
}

// InsertRequest implements compliance.RequestStore.
func (s *SQLStorage) InsertRequest(ctx context.Context, r *compliance.DeletionRequest, entry *compliance.AuditEntry) error {
	types, report, err := encodeRequestJSON(r)
	if err != nil {
		return s.storageErr("insert_request", err)
	}
	now := s.now().UTC()
	d := s.dialect

	query := s.db.Rebind(`INSERT INTO deletion_requests (` + requestColumns + `) VALUES (` + placeholders(21) + `)`)

	return s.withTx(ctx, "insert_request", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			r.ID, string(r.Type), r.Requester, r.SubmittedBy, string(r.Scope), types, d.nullTS(r.From), d.nullTS(r.To),
			string(r.Status), r.Reason, d.ts(r.DeadlineAt), r.VerificationTokenHash, r.VerificationRequired, d.nullTS(r.VerifiedAt),
			r.RecordsDeleted, report, d.nullTS(r.StartedAt), d.nullTS(r.CompletedAt), 1, d.ts(now), d.ts(now),
		)
		if err != nil {
			return s.storageErr("insert_request", err)
		}
		if err := s.insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		r.Version = 1
		r.CreatedAt = now
		r.UpdatedAt = now
		return nil
	})
}

// GetRequest implements compliance.RequestStore.
func (s *SQLStorage) GetRequest(ctx context.Context, id string) (*compliance.DeletionRequest, error) {
	var row requestRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+requestColumns+` FROM deletion_requests WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compliance.NewNotFoundError("deletion_request", id)
	}
	if err != nil {
		return nil, s.storageErr("get_request", err)
	}
	return row.request(), nil
}

// GetRequestByTokenHash implements compliance.RequestStore.
func (s *SQLStorage) GetRequestByTokenHash(ctx context.Context, tokenHash string) (*compliance.DeletionRequest, error) {
	if tokenHash == "" {
		return nil, compliance.NewNotFoundError("deletion_request", "token")
	}
	var row requestRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT `+requestColumns+` FROM deletion_requests WHERE verification_token_hash = ?`), tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compliance.NewNotFoundError("deletion_request", "token")
	}
	if err != nil {
		return nil, s.storageErr("get_request_by_token", err)
	}
	return row.request(), nil
}

// ListRequests implements compliance.RequestStore.
func (s *SQLStorage) ListRequests(ctx context.Context, q *compliance.RequestQuery) ([]*compliance.DeletionRequest, error) {
	var conds []string
	var args []any
	if q.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(q.Status))
	}
	if q.Requester != "" {
		conds = append(conds, "requester = ?")
		args = append(args, q.Requester)
	}
	if q.Type != "" {
		conds = append(conds, "request_type = ?")
		args = append(args, string(q.Type))
	}
	if q.DeadlineBefore != nil {
		conds = append(conds, "deadline_at < ?")
		args = append(args, s.dialect.ts(*q.DeadlineBefore))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	page, pageArgs := limitOffset(q.Limit, q.Offset)

	var rows []requestRow
	query := s.db.Rebind(`SELECT ` + requestColumns + ` FROM deletion_requests` + where + ` ORDER BY created_at DESC, id ASC` + page)
	if err := s.db.SelectContext(ctx, &rows, query, append(args, pageArgs...)...); err != nil {
		return nil, s.storageErr("list_requests", err)
	}

	out := make([]*compliance.DeletionRequest, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].request())
	}
	return out, nil
}

// UpdateRequest implements compliance.RequestStore.
func (s *SQLStorage) UpdateRequest(ctx context.Context, r *compliance.DeletionRequest, entry *compliance.AuditEntry) error {
	types, report, err := encodeRequestJSON(r)
	if err != nil {
		return s.storageErr("update_request", err)
	}
	now := s.now().UTC()
	d := s.dialect

	query := s.db.Rebind(`UPDATE deletion_requests SET
		pii_types = ?, range_from = ?, range_to = ?, status = ?, reason = ?, deadline_at = ?,
		verification_token_hash = ?, verification_required = ?, verified_at = ?,
		records_deleted = ?, report = ?, started_at = ?, completed_at = ?,
		version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`)

	return s.withTx(ctx, "update_request", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			types, d.nullTS(r.From), d.nullTS(r.To), string(r.Status), r.Reason, d.ts(r.DeadlineAt),
			r.VerificationTokenHash, r.VerificationRequired, d.nullTS(r.VerifiedAt),
			r.RecordsDeleted, report, d.nullTS(r.StartedAt), d.nullTS(r.CompletedAt),
			d.ts(now),
			r.ID, r.Version,
		)
		if err != nil {
			return s.storageErr("update_request", err)
		}
		if err := s.checkVersioned(ctx, tx, res, "deletion_request", "deletion_requests", r.ID, r.Version); err != nil {
			return err
		}
		if err := s.insertAudit(ctx, tx, entry); err != nil {
			return err
		}
		r.Version++
		r.UpdatedAt = now
		return nil
	})
}

// ---- audit ----

const auditColumns = `id, event_type, detection_record_id, deletion_request_id, policy_id,
	actor, actor_type, compliance_impact, details, request_id, occurred_at`

type auditRow struct {
	ID                string `db:"id"`
	EventType         string `db:"event_type"`
	DetectionRecordID string `db:"detection_record_id"`
	DeletionRequestID string `db:"deletion_request_id"`
	PolicyID          string `db:"policy_id"`
	Actor             string `db:"actor"`
	ActorType         string `db:"actor_type"`
	ComplianceImpact  string `db:"compliance_impact"`
	Details           string `db:"details"`
	RequestID         string `db:"request_id"`
	OccurredAt        dbTime `db:"occurred_at"`
}

func (r *auditRow) entry() *compliance.AuditEntry {
	var details map[string]any
	if r.Details != "" && r.Details != "{}" {
		_ = json.Unmarshal([]byte(r.Details), &details)
	}
	return &compliance.AuditEntry{
		ID:                r.ID,
		EventType:         r.EventType,
		DetectionRecordID: r.DetectionRecordID,
		DeletionRequestID: r.DeletionRequestID,
		PolicyID:          r.PolicyID,
		Actor:             r.Actor,
		ActorType:         r.ActorType,
		ComplianceImpact:  compliance.ComplianceImpact(r.ComplianceImpact),
		Details:           details,
		RequestID:         r.RequestID,
		Timestamp:         r.OccurredAt.T,
	}
}

// insertAudit writes entry inside tx. A nil entry is a no-op.
func (s *SQLStorage) insertAudit(ctx context.Context, tx sqlx.ExecerContext, entry *compliance.AuditEntry) error {
	if entry == nil {
		return nil
	}
	prepareEntry(entry, s.now)

	details := "{}"
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return s.storageErr("append_audit", err)
		}
		details = string(b)
	}

	_, err := tx.ExecContext(ctx, s.db.Rebind(`INSERT INTO audit_log (`+auditColumns+`) VALUES (`+placeholders(11)+`)`),
		entry.ID, entry.EventType, entry.DetectionRecordID, entry.DeletionRequestID, entry.PolicyID,
		entry.Actor, entry.ActorType, string(entry.ComplianceImpact), details, entry.RequestID, s.dialect.ts(entry.Timestamp),
	)
	if err != nil {
		return s.storageErr("append_audit", err)
	}
	return nil
}

// AppendAudit implements compliance.AuditStore.
func (s *SQLStorage) AppendAudit(ctx context.Context, entry *compliance.AuditEntry) error {
	return s.insertAudit(ctx, s.db, entry)
}

func (s *SQLStorage) auditWhere(q *compliance.AuditQuery) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if q.EventType != "" {
		add("event_type = ?", q.EventType)
	}
	if q.DetectionRecordID != "" {
		add("detection_record_id = ?", q.DetectionRecordID)
	}
	if q.DeletionRequestID != "" {
		add("deletion_request_id = ?", q.DeletionRequestID)
	}
	if q.Actor != "" {
		add("actor = ?", q.Actor)
	}
	if q.ComplianceImpact != "" {
		add("compliance_impact = ?", string(q.ComplianceImpact))
	}
	if q.From != nil {
		add("occurred_at >= ?", s.dialect.ts(*q.From))
	}
	if q.To != nil {
		add("occurred_at <= ?", s.dialect.ts(*q.To))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// QueryAudit implements compliance.AuditStore.
func (s *SQLStorage) QueryAudit(ctx context.Context, q *compliance.AuditQuery) ([]*compliance.AuditEntry, error) {
	where, args := s.auditWhere(q)
	page, pageArgs := limitOffset(q.Limit, q.Offset)

	var rows []auditRow
	query := s.db.Rebind(`SELECT ` + auditColumns + ` FROM audit_log` + where + ` ORDER BY seq ASC` + page)
	if err := s.db.SelectContext(ctx, &rows, query, append(args, pageArgs...)...); err != nil {
		return nil, s.storageErr("query_audit", err)
	}

	out := make([]*compliance.AuditEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].entry())
	}
	return out, nil
}

// CountAudit implements compliance.AuditStore.
func (s *SQLStorage) CountAudit(ctx context.Context, q *compliance.AuditQuery) (int64, error) {
	where, args := s.auditWhere(q)

	var n int64
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(`SELECT COUNT(*) FROM audit_log`+where), args...); err != nil {
		return 0, s.storageErr("count_audit", err)
	}
	return n, nil
}
