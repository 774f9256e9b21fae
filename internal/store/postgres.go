package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/appraisement/appraisal-engine/internal/db"
	"github.com/appraisement/appraisal-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot pipeline paths.
var preparedStatements = map[string]string{
	"get_request":         `SELECT ` + requestColumns + ` FROM appraisal_requests WHERE id = $1`,
	"find_active_request": `SELECT ` + requestColumns + ` FROM appraisal_requests WHERE normalized_address = $1 AND status NOT IN ('done', 'failed') ORDER BY created_at ASC LIMIT 1`,
	"update_status":       `UPDATE appraisal_requests SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
	"get_cache_entry":     `SELECT key, function_id, payload, cached_at, expires_at FROM cache_entries WHERE key = $1 AND expires_at > now()`,
	"put_cache_entry":     `INSERT INTO cache_entries (key, function_id, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (key) DO UPDATE SET function_id = excluded.function_id, payload = excluded.payload, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS appraisal_requests (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	address            TEXT NOT NULL,
	normalized_address TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'running',
	workflow_id        TEXT,
	final_value        DOUBLE PRECISION,
	error_message      TEXT,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS properties (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request_id     TEXT REFERENCES appraisal_requests(id),
	role           TEXT NOT NULL,
	line1          TEXT,
	full_address   TEXT NOT NULL UNIQUE,
	city           TEXT,
	state          TEXT,
	postal_code    TEXT,
	country_code   TEXT,
	longitude      DOUBLE PRECISION,
	latitude       DOUBLE PRECISION,
	account_number TEXT,
	parcel_id      TEXT,
	attributes     JSONB NOT NULL DEFAULT '{}',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS comparables (
	request_id  TEXT NOT NULL REFERENCES appraisal_requests(id),
	property_id TEXT NOT NULL REFERENCES properties(id),
	position    INTEGER NOT NULL,
	PRIMARY KEY (request_id, property_id)
);

CREATE TABLE IF NOT EXISTS sales_history (
	id             TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	property_id    TEXT NOT NULL REFERENCES properties(id),
	previous_owner TEXT,
	sale_date      TEXT,
	sale_price     DOUBLE PRECISION,
	adjusted_price DOUBLE PRECISION,
	unit_price     DOUBLE PRECISION,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appraisal_results (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	request_id TEXT NOT NULL REFERENCES appraisal_requests(id),
	payload    JSONB NOT NULL,
	narrative  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cache_entries (
	key         TEXT PRIMARY KEY,
	function_id TEXT NOT NULL,
	payload     JSONB NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_requests_normalized ON appraisal_requests(normalized_address);
CREATE INDEX IF NOT EXISTS idx_requests_status ON appraisal_requests(status);
CREATE INDEX IF NOT EXISTS idx_properties_request ON properties(request_id);
CREATE INDEX IF NOT EXISTS idx_properties_account ON properties(account_number);
CREATE INDEX IF NOT EXISTS idx_sales_property ON sales_history(property_id);
CREATE INDEX IF NOT EXISTS idx_results_request ON appraisal_results(request_id);
CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Requests ---

func (s *PostgresStore) CreateRequest(ctx context.Context, address, normalized string) (*model.AppraisalRequest, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO appraisal_requests (id, address, normalized_address, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, address, normalized, string(model.StatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert request")
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

func (s *PostgresStore) GetRequest(ctx context.Context, id string) (*model.AppraisalRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM appraisal_requests WHERE id = $1`, id)
	return scanRequest(row)
}

func (s *PostgresStore) FindActiveRequest(ctx context.Context, normalized string) (*model.AppraisalRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM appraisal_requests
		 WHERE normalized_address = $1 AND status NOT IN ('done', 'failed')
		 ORDER BY created_at ASC LIMIT 1`,
		normalized,
	)
	return scanRequest(row)
}

func (s *PostgresStore) LinkWorkflow(ctx context.Context, id, workflowID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appraisal_requests SET workflow_id = $1, updated_at = now() WHERE id = $2`,
		workflowID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: link workflow %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, status model.RequestStatus) error {
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

	tag, err := s.pool.Exec(ctx,
		`UPDATE appraisal_requests SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(status), id, string(current.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update request status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found or not updatable: %s", id)
	}
	return nil
}

func (s *PostgresStore) CompleteRequest(ctx context.Context, id string, finalValue float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appraisal_requests SET status = 'done', final_value = $1, updated_at = now()
		 WHERE id = $2 AND status NOT IN ('done', 'failed')`,
		finalValue, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete request %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found or not updatable: %s", id)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE appraisal_requests SET status = 'failed', error_message = $1, updated_at = now()
		 WHERE id = $2 AND status NOT IN ('done', 'failed')`,
		message, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark failed %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("request not found or not updatable: %s", id)
	}
	return nil
}

func (s *PostgresStore) ListRequests(ctx context.Context, filter RequestFilter) ([]model.AppraisalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM appraisal_requests`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` WHERE status = $1`
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list requests")
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
	return reqs, eris.Wrap(rows.Err(), "postgres: list requests iterate")
}

// --- Properties ---

func (s *PostgresStore) UpsertProperty(ctx context.Context, p *model.Property) (*model.Property, error) {
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
			if _, err := s.pool.Exec(ctx,
				`UPDATE properties SET request_id = $1, role = 'subject', updated_at = now() WHERE id = $2`,
				*p.RequestID, existing.ID,
			); err != nil {
				return nil, eris.Wrapf(err, "postgres: claim subject property %s", existing.ID)
			}
		}
		return s.getPropertyByAddress(ctx, p.FullAddress)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	attrsJSON, err := json.Marshal(p.Attributes)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal attributes")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO properties (id, request_id, role, line1, full_address, city, state, postal_code, country_code,
		                         longitude, latitude, account_number, parcel_id, attributes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (full_address) DO NOTHING`,
		id, p.RequestID, string(p.Role), p.Line1, p.FullAddress, p.City, p.State, p.PostalCode, p.CountryCode,
		p.Longitude, p.Latitude, p.AccountNumber, p.ParcelID, string(attrsJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert property")
	}

	// Re-read after the conditional insert: a concurrent writer may have won.
	return s.getPropertyByAddress(ctx, p.FullAddress)
}

func (s *PostgresStore) fillPropertyAddressFields(ctx context.Context, existing, incoming *model.Property) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE properties SET
			line1          = COALESCE(line1, $1),
			city           = COALESCE(city, $2),
			state          = COALESCE(state, $3),
			postal_code    = COALESCE(postal_code, $4),
			country_code   = COALESCE(country_code, $5),
			longitude      = COALESCE(longitude, $6),
			latitude       = COALESCE(latitude, $7),
			account_number = COALESCE(account_number, $8),
			parcel_id      = COALESCE(parcel_id, $9),
			updated_at     = now()
		 WHERE id = $10`,
		incoming.Line1, incoming.City, incoming.State, incoming.PostalCode, incoming.CountryCode,
		incoming.Longitude, incoming.Latitude, incoming.AccountNumber, incoming.ParcelID,
		existing.ID,
	)
	return eris.Wrapf(err, "postgres: fill property fields %s", existing.ID)
}

func (s *PostgresStore) getPropertyByAddress(ctx context.Context, fullAddress string) (*model.Property, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE full_address = $1`, fullAddress)
	return scanProperty(row)
}

func (s *PostgresStore) GetProperty(ctx context.Context, id string) (*model.Property, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE id = $1`, id)
	return scanProperty(row)
}

func (s *PostgresStore) GetSubjectProperty(ctx context.Context, requestID string) (*model.Property, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM properties WHERE request_id = $1 AND role = 'subject' LIMIT 1`,
		requestID,
	)
	return scanProperty(row)
}

func (s *PostgresStore) AttachComparable(ctx context.Context, requestID, propertyID string, position int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO comparables (request_id, property_id, position) VALUES ($1, $2, $3)
		 ON CONFLICT (request_id, property_id) DO NOTHING`,
		requestID, propertyID, position,
	)
	return eris.Wrapf(err, "postgres: attach comparable %s to %s", propertyID, requestID)
}

func (s *PostgresStore) ListComparables(ctx context.Context, requestID string) ([]model.Property, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.request_id, p.role, p.line1, p.full_address, p.city, p.state, p.postal_code, p.country_code,
		        p.longitude, p.latitude, p.account_number, p.parcel_id, p.attributes, p.created_at, p.updated_at
		 FROM properties p
		 JOIN comparables c ON c.property_id = p.id
		 WHERE c.request_id = $1
		 ORDER BY c.position ASC`,
		requestID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list comparables")
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
	return props, eris.Wrap(rows.Err(), "postgres: list comparables iterate")
}

func (s *PostgresStore) SetAccountNumber(ctx context.Context, propertyID string, accountNumber *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE properties SET account_number = $1, updated_at = now() WHERE id = $2`,
		accountNumber, propertyID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set account number %s", propertyID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("property not found: %s", propertyID)
	}
	return nil
}

func (s *PostgresStore) EnrichProperty(ctx context.Context, propertyID string, attrs model.PropertyAttributes) (int, error) {
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
		return 0, eris.Wrap(err, "postgres: marshal attributes")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE properties SET attributes = $1, updated_at = now() WHERE id = $2`,
		string(attrsJSON), propertyID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: enrich property %s", propertyID)
	}
	return filled, nil
}

// --- Sales history ---

func (s *PostgresStore) AddSalesHistory(ctx context.Context, propertyID string, sales []model.SaleRecord) error {
	now := time.Now().UTC()
	for _, sale := range sales {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO sales_history (id, property_id, previous_owner, sale_date, sale_price, adjusted_price, unit_price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			uuid.New().String(), propertyID, sale.PreviousOwner, sale.SaleDate, sale.SalePrice, sale.AdjustedPrice, sale.UnitPrice, now,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert sale for %s", propertyID)
		}
	}
	return nil
}

func (s *PostgresStore) ListSalesHistory(ctx context.Context, propertyID string) ([]model.SaleRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, property_id, previous_owner, sale_date, sale_price, adjusted_price, unit_price, created_at
		 FROM sales_history WHERE property_id = $1 ORDER BY sale_date DESC, created_at DESC`,
		propertyID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sales history")
	}
	defer rows.Close()

	var sales []model.SaleRecord
	for rows.Next() {
		var sr model.SaleRecord
		if err := rows.Scan(&sr.ID, &sr.PropertyID, &sr.PreviousOwner, &sr.SaleDate, &sr.SalePrice, &sr.AdjustedPrice, &sr.UnitPrice, &sr.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sale")
		}
		sales = append(sales, sr)
	}
	return sales, eris.Wrap(rows.Err(), "postgres: list sales iterate")
}

// --- Results ---

func (s *PostgresStore) SaveResult(ctx context.Context, res *model.AppraisalResult) (*model.AppraisalResult, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	payloadJSON, err := json.Marshal(res.Payload)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal result payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO appraisal_results (id, request_id, payload, narrative, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, res.RequestID, string(payloadJSON), res.Narrative, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert result")
	}

	saved := *res
	saved.ID = id
	saved.CreatedAt = now
	return &saved, nil
}

func (s *PostgresStore) GetLatestResult(ctx context.Context, requestID string) (*model.AppraisalResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, request_id, payload, narrative, created_at FROM appraisal_results
		 WHERE request_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		requestID,
	)

	var res model.AppraisalResult
	var payloadJSON string
	err := row.Scan(&res.ID, &res.RequestID, &payloadJSON, &res.Narrative, &res.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest result")
	}
	if err := json.Unmarshal([]byte(payloadJSON), &res.Payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal result payload")
	}
	return &res, nil
}

// --- Cache ---

func (s *PostgresStore) GetCacheEntry(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT key, function_id, payload, cached_at, expires_at FROM cache_entries
		 WHERE key = $1 AND expires_at > now()`,
		key,
	)

	var e model.CacheEntry
	var payload string
	err := row.Scan(&e.Key, &e.FunctionID, &payload, &e.CachedAt, &e.ExpiresAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	e.Payload = []byte(payload)
	return &e, nil
}

func (s *PostgresStore) PutCacheEntry(ctx context.Context, entry *model.CacheEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_entries (key, function_id, payload, cached_at, expires_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO UPDATE SET
			function_id = excluded.function_id,
			payload     = excluded.payload,
			cached_at   = excluded.cached_at,
			expires_at  = excluded.expires_at`,
		entry.Key, entry.FunctionID, string(entry.Payload), entry.CachedAt, entry.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: put cache entry")
}

func (s *PostgresStore) DeleteExpiredCacheEntries(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache entries")
	}
	return int(tag.RowsAffected()), nil
}
