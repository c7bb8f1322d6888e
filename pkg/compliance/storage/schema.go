package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// sqliteSchema creates the SQLite schema. Timestamps are stored as fixed-width
// UTC text (see sqliteTimeLayout) so that string comparison orders them.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS detection_records (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL DEFAULT '',
    honey_jar_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,

    pii_type TEXT NOT NULL,
    risk_level TEXT NOT NULL CHECK (risk_level IN ('high', 'medium', 'low')),
    confidence_score REAL NOT NULL CHECK (confidence_score >= 0 AND confidence_score <= 100),
    span_start INTEGER NOT NULL CHECK (span_start >= 0),
    span_end INTEGER NOT NULL,
    context_hash TEXT NOT NULL DEFAULT '',
    value_hash TEXT NOT NULL,
    frameworks TEXT NOT NULL DEFAULT '[]',
    detection_mode TEXT NOT NULL CHECK (detection_mode IN ('general', 'medical', 'legal', 'financial')),

    detected_at TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    processed INTEGER NOT NULL DEFAULT 0,
    notified INTEGER NOT NULL DEFAULT 0,
    deleted_at TEXT,
    deletion_request_id TEXT NOT NULL DEFAULT '',

    flagged_for_review INTEGER NOT NULL DEFAULT 0,
    flagged_by TEXT NOT NULL DEFAULT '',
    flagged_at TEXT,
    flag_reason TEXT NOT NULL DEFAULT '',
    admin_notes TEXT NOT NULL DEFAULT '',
    severity_override TEXT NOT NULL DEFAULT '' CHECK (severity_override IN ('', 'high', 'medium', 'low')),
    action_required TEXT NOT NULL DEFAULT '',
    review_status TEXT NOT NULL DEFAULT '' CHECK (review_status IN ('', 'pending', 'in_review', 'resolved', 'dismissed')),
    reviewed_by TEXT NOT NULL DEFAULT '',
    reviewed_at TEXT,

    version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,

    CHECK (span_end >= span_start)
)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_user_detected ON detection_records(user_id, detected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_expiry_active ON detection_records(expires_at, id) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_detection_pii_type ON detection_records(pii_type)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_honey_jar ON detection_records(honey_jar_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_request ON detection_records(deletion_request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_review ON detection_records(review_status)`,

	`CREATE TABLE IF NOT EXISTS retention_policies (
    id TEXT PRIMARY KEY,
    framework TEXT NOT NULL,
    pii_type TEXT NOT NULL DEFAULT '',
    retention_days INTEGER NOT NULL CHECK (retention_days >= 0),
    grace_period_days INTEGER NOT NULL DEFAULT 0 CHECK (grace_period_days >= 0),
    auto_deletion INTEGER NOT NULL DEFAULT 1,
    immediate_deletion_on_request INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    effective_date TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    UNIQUE (framework, pii_type)
)`,

	`CREATE TABLE IF NOT EXISTS deletion_requests (
    id TEXT PRIMARY KEY,
    request_type TEXT NOT NULL CHECK (request_type IN ('gdpr_erasure', 'ccpa_deletion', 'manual')),
    requester TEXT NOT NULL,
    submitted_by TEXT NOT NULL DEFAULT '',
    scope TEXT NOT NULL CHECK (scope IN ('all_data', 'specific_types', 'date_range')),
    pii_types TEXT NOT NULL DEFAULT '[]',
    range_from TEXT,
    range_to TEXT,
    status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'rejected')),
    reason TEXT NOT NULL DEFAULT '',
    deadline_at TEXT NOT NULL,
    verification_token_hash TEXT NOT NULL DEFAULT '',
    verification_required INTEGER NOT NULL DEFAULT 1,
    verified_at TEXT,
    records_deleted INTEGER NOT NULL DEFAULT 0 CHECK (records_deleted >= 0),
    report TEXT NOT NULL DEFAULT '',
    started_at TEXT,
    completed_at TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_request_status ON deletion_requests(status, deadline_at)`,
	`CREATE INDEX IF NOT EXISTS idx_request_requester ON deletion_requests(requester)`,
	`CREATE INDEX IF NOT EXISTS idx_request_token ON deletion_requests(verification_token_hash)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    detection_record_id TEXT NOT NULL DEFAULT '',
    deletion_request_id TEXT NOT NULL DEFAULT '',
    policy_id TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    actor_type TEXT NOT NULL DEFAULT '',
    compliance_impact TEXT NOT NULL CHECK (compliance_impact IN ('high', 'medium', 'low', 'none')),
    details TEXT NOT NULL DEFAULT '{}',
    request_id TEXT NOT NULL DEFAULT '',
    occurred_at TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_detection ON audit_log(detection_record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_request ON audit_log(deletion_request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event_type, occurred_at)`,

	`CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log
BEGIN
    SELECT RAISE(ABORT, 'audit_log is append-only');
END`,
	`CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log
BEGIN
    SELECT RAISE(ABORT, 'audit_log is append-only');
END`,
}

// postgresSchema creates the PostgreSQL schema.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
)`,

	`CREATE TABLE IF NOT EXISTS detection_records (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL DEFAULT '',
    honey_jar_id TEXT NOT NULL DEFAULT '',
    user_id TEXT NOT NULL,

    pii_type TEXT NOT NULL,
    risk_level TEXT NOT NULL CHECK (risk_level IN ('high', 'medium', 'low')),
    confidence_score DOUBLE PRECISION NOT NULL CHECK (confidence_score >= 0 AND confidence_score <= 100),
    span_start INTEGER NOT NULL CHECK (span_start >= 0),
    span_end INTEGER NOT NULL,
    context_hash TEXT NOT NULL DEFAULT '',
    value_hash TEXT NOT NULL,
    frameworks TEXT NOT NULL DEFAULT '[]',
    detection_mode TEXT NOT NULL CHECK (detection_mode IN ('general', 'medical', 'legal', 'financial')),

    detected_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    processed BOOLEAN NOT NULL DEFAULT FALSE,
    notified BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    deletion_request_id TEXT NOT NULL DEFAULT '',

    flagged_for_review BOOLEAN NOT NULL DEFAULT FALSE,
    flagged_by TEXT NOT NULL DEFAULT '',
    flagged_at TIMESTAMPTZ,
    flag_reason TEXT NOT NULL DEFAULT '',
    admin_notes TEXT NOT NULL DEFAULT '',
    severity_override TEXT NOT NULL DEFAULT '' CHECK (severity_override IN ('', 'high', 'medium', 'low')),
    action_required TEXT NOT NULL DEFAULT '',
    review_status TEXT NOT NULL DEFAULT '' CHECK (review_status IN ('', 'pending', 'in_review', 'resolved', 'dismissed')),
    reviewed_by TEXT NOT NULL DEFAULT '',
    reviewed_at TIMESTAMPTZ,

    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,

    CHECK (span_end >= span_start)
)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_user_detected ON detection_records(user_id, detected_at)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_expiry_active ON detection_records(expires_at, id) WHERE deleted_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_detection_pii_type ON detection_records(pii_type)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_honey_jar ON detection_records(honey_jar_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_request ON detection_records(deletion_request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_detection_review ON detection_records(review_status)`,

	`CREATE TABLE IF NOT EXISTS retention_policies (
    id TEXT PRIMARY KEY,
    framework TEXT NOT NULL,
    pii_type TEXT NOT NULL DEFAULT '',
    retention_days INTEGER NOT NULL CHECK (retention_days >= 0),
    grace_period_days INTEGER NOT NULL DEFAULT 0 CHECK (grace_period_days >= 0),
    auto_deletion BOOLEAN NOT NULL DEFAULT TRUE,
    immediate_deletion_on_request BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    effective_date TIMESTAMPTZ NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (framework, pii_type)
)`,

	`CREATE TABLE IF NOT EXISTS deletion_requests (
    id TEXT PRIMARY KEY,
    request_type TEXT NOT NULL CHECK (request_type IN ('gdpr_erasure', 'ccpa_deletion', 'manual')),
    requester TEXT NOT NULL,
    submitted_by TEXT NOT NULL DEFAULT '',
    scope TEXT NOT NULL CHECK (scope IN ('all_data', 'specific_types', 'date_range')),
    pii_types TEXT NOT NULL DEFAULT '[]',
    range_from TIMESTAMPTZ,
    range_to TIMESTAMPTZ,
    status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'rejected')),
    reason TEXT NOT NULL DEFAULT '',
    deadline_at TIMESTAMPTZ NOT NULL,
    verification_token_hash TEXT NOT NULL DEFAULT '',
    verification_required BOOLEAN NOT NULL DEFAULT TRUE,
    verified_at TIMESTAMPTZ,
    records_deleted INTEGER NOT NULL DEFAULT 0 CHECK (records_deleted >= 0),
    report TEXT NOT NULL DEFAULT '',
    started_at TIMESTAMPTZ,
    completed_at TIMESTAMPTZ,
    version BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_request_status ON deletion_requests(status, deadline_at)`,
	`CREATE INDEX IF NOT EXISTS idx_request_requester ON deletion_requests(requester)`,
	`CREATE INDEX IF NOT EXISTS idx_request_token ON deletion_requests(verification_token_hash)`,

	`CREATE TABLE IF NOT EXISTS audit_log (
    seq BIGSERIAL PRIMARY KEY,
    id TEXT NOT NULL UNIQUE,
    event_type TEXT NOT NULL,
    detection_record_id TEXT NOT NULL DEFAULT '',
    deletion_request_id TEXT NOT NULL DEFAULT '',
    policy_id TEXT NOT NULL DEFAULT '',
    actor TEXT NOT NULL DEFAULT '',
    actor_type TEXT NOT NULL DEFAULT '',
    compliance_impact TEXT NOT NULL CHECK (compliance_impact IN ('high', 'medium', 'low', 'none')),
    details TEXT NOT NULL DEFAULT '{}',
    request_id TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_detection ON audit_log(detection_record_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_request ON audit_log(deletion_request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_event ON audit_log(event_type, occurred_at)`,

	`CREATE OR REPLACE FUNCTION audit_log_append_only() RETURNS trigger AS $$
BEGIN
    RAISE EXCEPTION 'audit_log is append-only';
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS audit_log_no_modify ON audit_log`,
	`CREATE TRIGGER audit_log_no_modify BEFORE UPDATE OR DELETE ON audit_log
    FOR EACH ROW EXECUTE FUNCTION audit_log_append_only()`,
}

const insertSchemaVersion = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?) ON CONFLICT (version) DO NOTHING`

const selectSchemaVersion = `SELECT COALESCE(MAX(version), 0) FROM schema_version`
