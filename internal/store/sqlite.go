package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/appraisement/appraisal-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS appraisal_requests (
	id                 TEXT PRIMARY KEY,
	address            TEXT NOT NULL,
	normalized_address TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'running',
	workflow_id        TEXT,
	final_value        REAL,
	error_message      TEXT,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at         DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS properties (
	id             TEXT PRIMARY KEY,
	request_id     TEXT REFERENCES appraisal_requests(id),
	role           TEXT NOT NULL,
	line1          TEXT,
	full_address   TEXT NOT NULL UNIQUE,
	city           TEXT,
	state          TEXT,
	postal_code    TEXT,
	country_code   TEXT,
	longitude      REAL,
	latitude       REAL,
	account_number TEXT,
	parcel_id      TEXT,
	attributes     TEXT NOT NULL DEFAULT '{}',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS comparables (
	request_id  TEXT NOT NULL REFERENCES appraisal_requests(id),
	property_id TEXT NOT NULL REFERENCES properties(id),
	position    INTEGER NOT NULL,
	PRIMARY KEY (request_id, property_id)
);

CREATE TABLE IF NOT EXISTS sales_history (
	id             TEXT PRIMARY KEY,
	property_id    TEXT NOT NULL REFERENCES properties(id),
	previous_owner TEXT,
	sale_date      TEXT,
	sale_price     REAL,
	adjusted_price REAL,
	unit_price     REAL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS appraisal_results (
	id         TEXT PRIMARY KEY,
	request_id TEXT NOT NULL REFERENCES appraisal_requests(id),
	payload    TEXT NOT NULL,
	narrative  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS cache_entries (
	key         TEXT PRIMARY KEY,
	function_id TEXT NOT NULL,
	payload     TEXT NOT NULL,
	cached_at   DATETIME NOT NULL,
	expires_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_normalized ON appraisal_requests(normalized_address);
CREATE INDEX IF NOT EXISTS idx_requests_status ON appraisal_requests(status);
CREATE INDEX IF NOT EXISTS idx_properties_request ON properties(request_id);
CREATE INDEX IF NOT EXISTS idx_properties_account ON properties(account_number);
CREATE INDEX IF NOT EXISTS idx_sales_property ON sales_history(property_id);
CREATE INDEX IF NOT EXISTS idx_results_request ON appraisal_results(request_id);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Requests ---

func (s *SQLiteStore) CreateRequest(ctx context.Context, address, normalized string) (*model.AppraisalRequest, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO appraisal_requests (id, address, normalized_address, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, address, normalized, string(model.StatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert request")
	}

	return &model.AppraisalRequest{
		ID:                id,
		Address:           address,
		NormalizedAddress: normalized,
		Status:            model.StatusRunning,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

const requestColumns = `id, address, normalized_address, status, workflow_id, final_value, error_message, created_at, updated_at`

func (s *SQLiteStore) GetRequest(ctx context.Context, id string) (*model.AppraisalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM appraisal_requests WHERE id = ?`, id)
	return scanRequest(row)
}

func (s *SQLiteStore) FindActiveRequest(ctx context.Context, normalized string) (*model.AppraisalRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM appraisal_requests
		 WHERE normalized_address = ? AND status NOT IN ('done', 'failed')
		 ORDER BY created_at ASC LIMIT 1`,
		normalized,
	)
	return scanRequest(row)
}

func (s *SQLiteStore) LinkWorkflow(ctx context.Context, id, workflowID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appraisal_requests SET workflow_id = ?, updated_at = ? WHERE id = ?`,
		workflowID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: link workflow %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
	current, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return eris.Errorf("request not found: %s", id)
	}
	if !model.CanTransition(current.Status, status) {
		return eris.Errorf("illegal status transition %s -> %s for request %s", current.Status, status, id)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE appraisal_requests SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC(), id, string(current.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update request status %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteStore) CompleteRequest(ctx context.Context, id string, finalValue float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appraisal_requests SET status = 'done', final_value = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('done', 'failed')`,
		finalValue, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete request %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE appraisal_requests SET status = 'failed', error_message = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ('done', 'failed')`,
		message, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark failed %s", id)
	}
	return checkRowsAffected(res, "request", id)
}

func (s *SQLiteStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.AppraisalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM appraisal_requests WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list requests")
	}
	defer rows.Close()

	var reqs []model.AppraisalRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, *r)
	}
	return reqs, eris.Wrap(rows.Err(), "sqlite: list requests iterate")
}

// --- Properties ---

const propertyColumns = `id, request_id, role, line1, full_address, city, state, postal_code, country_code, longitude, latitude, account_number, parcel_id, attributes, created_at, updated_at`

func (s *SQLiteStore) UpsertProperty(ctx context.Context, p *model.Property) (*model.Property, error) {
	existing, err := s.getPropertyByAddress(ctx, p.FullAddress)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		// First insert wins; fill still-null address fields from the new row.
		if err := s.fillPropertyAddressFields(ctx, existing, p); err != nil {
			return nil, err
		}
		// A subject upsert claims the row for its request: a re-appraisal of
		// an address must find its subject under the new request ID.
		if p.Role == model.RoleSubject && p.RequestID != nil &&
			(existing.RequestID == nil || *existing.RequestID != *p.RequestID || existing.Role != model.RoleSubject) {
			if _, err := s.db.ExecContext(ctx,
				`UPDATE properties SET request_id = ?, role = 'subject', updated_at = ? WHERE id = ?`,
				*p.RequestID, time.Now().UTC(), existing.ID,
			); err != nil {
				return nil, eris.Wrapf(err, "sqlite: claim subject property %s", existing.ID)
			}
		}
		return s.getPropertyByAddress(ctx, p.FullAddress)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	attrsJSON, err := json.Marshal(p.Attributes)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal attributes")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO properties (id, request_id, role, line1, full_address, city, state, postal_code, country_code,
		                         longitude, latitude, account_number, parcel_id, attributes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (full_address) DO NOTHING`,
		id, p.RequestID, string(p.Role), p.Line1, p.FullAddress, p.City, p.State, p.PostalCode, p.CountryCode,
		p.Longitude, p.Latitude, p.AccountNumber, p.ParcelID, string(attrsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert property")
	}

	// Re-read after the conditional insert: a concurrent writer may have won.
	return s.getPropertyByAddress(ctx, p.FullAddress)
}

func (s *SQLiteStore) fillPropertyAddressFields(ctx context.Context, existing, incoming *model.Property) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE properties SET
			line1          = COALESCE(line1, ?),
			city           = COALESCE(city, ?),
			state          = COALESCE(state, ?),
			postal_code    = COALESCE(postal_code, ?),
			country_code   = COALESCE(country_code, ?),
			longitude      = COALESCE(longitude, ?),
			latitude       = COALESCE(latitude, ?),
			account_number = COALESCE(account_number, ?),
			parcel_id      = COALESCE(parcel_id, ?),
			updated_at     = ?
		 WHERE id = ?`,
		incoming.Line1, incoming.City, incoming.State, incoming.PostalCode, incoming.CountryCode,
		incoming.Longitude, incoming.Latitude, incoming.AccountNumber, incoming.ParcelID,
		time.Now().UTC(), existing.ID,
	)
	return eris.Wrapf(err, "sqlite: fill property fields %s", existing.ID)
}

func (s *SQLiteStore) getPropertyByAddress(ctx context.Context, fullAddress string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE full_address = ?`, fullAddress)
	return scanProperty(row)
}

func (s *SQLiteStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = ?`, id)
	return scanProperty(row)
}

func (s *SQLiteStore) GetSubjectProperty(ctx context.Context, requestID string) (*model.Property, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE request_id = ? AND role = 'subject' LIMIT 1`,
		requestID,
	)
	return scanProperty(row)
}

func (s *SQLiteStore) AttachComparable(ctx context.Context, requestID, propertyID string, position int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comparables (request_id, property_id, position) VALUES (?, ?, ?)
		 ON CONFLICT (request_id, property_id) DO NOTHING`,
		requestID, propertyID, position,
	)
	return eris.Wrapf(err, "sqlite: attach comparable %s to %s", propertyID, requestID)
}

func (s *SQLiteStore) ListComparables(ctx context.Context, requestID string) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.request_id, p.role, p.line1, p.full_address, p.city, p.state, p.postal_code, p.country_code,
		        p.longitude, p.latitude, p.account_number, p.parcel_id, p.attributes, p.created_at, p.updated_at
		 FROM properties p
		 JOIN comparables c ON c.property_id = p.id
		 WHERE c.request_id = ?
		 ORDER BY c.position ASC`,
		requestID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list comparables")
	}
	defer rows.Close()

	var props []model.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		props = append(props, *p)
	}
	return props, eris.Wrap(rows.Err(), "sqlite: list comparables iterate")
}

func (s *SQLiteStore) SetAccountNumber(ctx context.Context, propertyID string, accountNumber *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE properties SET account_number = ?, updated_at = ? WHERE id = ?`,
		accountNumber, time.Now().UTC(), propertyID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set account number %s", propertyID)
	}
	return checkRowsAffected(res, "property", propertyID)
}

func (s *SQLiteStore) EnrichProperty(ctx context.Context, propertyID string, attrs model.PropertyAttributes) (int, error) {
	p, err := s.GetProperty(ctx, propertyID)
	if err != nil {
		return 0, err
	}
	if p == nil {
		return 0, eris.Errorf("property not found: %s", propertyID)
	}

	filled := p.Attributes.FillFrom(attrs)
	if filled == 0 {
		return 0, nil
	}

	attrsJSON, err := json.Marshal(p.Attributes)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: marshal attributes")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE properties SET attributes = ?, updated_at = ? WHERE id = ?`,
		string(attrsJSON), time.Now().UTC(), propertyID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: enrich property %s", propertyID)
	}
	return filled, nil
}

// --- Sales history ---

func (s *SQLiteStore) AddSalesHistory(ctx context.Context, propertyID string, sales []model.SaleRecord) error {
	now := time.Now().UTC()
	for _, sale := range sales {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sales_history (id, property_id, previous_owner, sale_date, sale_price, adjusted_price, unit_price, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), propertyID, sale.PreviousOwner, sale.SaleDate, sale.SalePrice, sale.AdjustedPrice, sale.UnitPrice, now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert sale for %s", propertyID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListSalesHistory(ctx context.Context, propertyID string) ([]model.SaleRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, property_id, previous_owner, sale_date, sale_price, adjusted_price, unit_price, created_at
		 FROM sales_history WHERE property_id = ? ORDER BY sale_date DESC, created_at DESC`,
		propertyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sales history")
	}
	defer rows.Close()

	var sales []model.SaleRecord
	for rows.Next() {
		var sr model.SaleRecord
		if err := rows.Scan(&sr.ID, &sr.PropertyID, &sr.PreviousOwner, &sr.SaleDate, &sr.SalePrice, &sr.AdjustedPrice, &sr.UnitPrice, &sr.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sale")
		}
		sales = append(sales, sr)
	}
	return sales, eris.Wrap(rows.Err(), "sqlite: list sales iterate")
}

// --- Results ---

func (s *SQLiteStore) SaveResult(ctx context.Context, res *model.AppraisalResult) (*model.AppraisalResult, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal result payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO appraisal_results (id, request_id, payload, narrative, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, res.RequestID, string(payloadJSON), res.Narrative, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert result")
	}

	saved := *res
	saved.ID = id
	saved.CreatedAt = now
	return &saved, nil
}

func (s *SQLiteStore) GetLatestResult(ctx context.Context, requestID string) (*model.AppraisalResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, request_id, payload, narrative, created_at FROM appraisal_results
		 WHERE request_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		requestID,
	)

	var res model.AppraisalResult
	var payloadJSON string
	err := row.Scan(&res.ID, &res.RequestID, &payloadJSON, &res.Narrative, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest result")
	}
	if err := json.Unmarshal([]byte(payloadJSON), &res.Payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal result payload")
	}
	return &res, nil
}

// --- Cache ---

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT key, function_id, payload, cached_at, expires_at FROM cache_entries
		 WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	)

	var e model.CacheEntry
	var payload string
	err := row.Scan(&e.Key, &e.FunctionID, &payload, &e.CachedAt, &e.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	e.Payload = []byte(payload)
	return &e, nil
}

func (s *SQLiteStore) PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, function_id, payload, cached_at, expires_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET
			function_id = excluded.function_id,
			payload     = excluded.payload,
			cached_at   = excluded.cached_at,
			expires_at  = excluded.expires_at`,
		entry.Key, entry.FunctionID, string(entry.Payload), entry.CachedAt, entry.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: put cache entry")
}

func (s *SQLiteStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache entries")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found or not updatable: %s", entity, id)
	}
	return nil
}
