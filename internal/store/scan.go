package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/appraisement/appraisal-engine/internal/model"
)

// scannable is satisfied by *sql.Row, *sql.Rows, pgx.Row, and pgx.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func scanRequest(row scannable) (*model.AppraisalRequest, error) {
	var r model.AppraisalRequest
	err := row.Scan(&r.ID, &r.Address, &r.NormalizedAddress, &r.Status, &r.WorkflowID,
		&r.FinalValue, &r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan request")
	}
	return &r, nil
}

func scanProperty(row scannable) (*model.Property, error) {
	var p model.Property
	var attrsJSON string
	err := row.Scan(&p.ID, &p.RequestID, &p.Role, &p.Line1, &p.FullAddress, &p.City, &p.State,
		&p.PostalCode, &p.CountryCode, &p.Longitude, &p.Latitude, &p.AccountNumber, &p.ParcelID,
		&attrsJSON, &p.CreatedAt, &p.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan property")
	}
	if err := json.Unmarshal([]byte(attrsJSON), &p.Attributes); err != nil {
		return nil, eris.Wrap(err, "unmarshal property attributes")
	}
	return &p, nil
}
