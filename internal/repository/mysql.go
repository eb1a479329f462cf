package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/event-checkin/internal/model"
)

// MySQL error numbers the store translates into sentinels.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrNoReferencedRow = 1452
)

const (
	eventColumns        = `id, name, description, location, starts_at, fields, created_at`
	registrationColumns = `r.id, r.event_id, r.submitted_at, r.form_data, r.check_in_token, r.checked_in, r.check_in_time`
)

// MySQLStore implements Store on top of the tables created by
// database.Migrate.  Form fields and answers are stored as JSON columns.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore returns a MySQLStore bound to the provided database.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

// translate maps driver errors that carry meaning for callers onto the
// package sentinels and leaves everything else untouched.
func translate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDuplicateEntry:
			return ErrConflict
		case mysqlErrNoReferencedRow:
			return ErrEventNotFound
		}
	}
	return err
}

func (s *MySQLStore) CreateEvent(ctx context.Context, e *model.Event) error {
	fields, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, e.Description, e.Location, e.StartsAt.UTC(), fields, e.CreatedAt.UTC(),
	)
	return translate(err)
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e      model.Event
		fields []byte
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Location, &e.StartsAt, &fields, &e.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &e.Fields); err != nil {
		return nil, fmt.Errorf("decode fields of event %s: %w", e.ID, err)
	}
	return &e, nil
}

func (s *MySQLStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return e, err
}

func (s *MySQLStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// CreateRegistration inserts the registration row and its token row in a
// single transaction.  Duplicate ids or tokens surface as ErrConflict and
// an unknown event as ErrEventNotFound.
func (s *MySQLStore) CreateRegistration(ctx context.Context, r *model.Registration) error {
	data, err := json.Marshal(r.FormData)
	if err != nil {
		return fmt.Errorf("encode form data: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO registrations (id, event_id, submitted_at, form_data, check_in_token, checked_in, check_in_time)
		 VALUES (?, ?, ?, ?, ?, 0, NULL)`,
		r.ID, r.EventID, r.SubmittedAt.UTC(), data, r.CheckInToken,
	); err != nil {
		return translate(err)
	}
	tok := r.Token()
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO checkin_tokens (token, event_id, registration_id, created_at) VALUES (?, ?, ?, ?)`,
		tok.Token, tok.EventID, tok.RegistrationID, tok.CreatedAt.UTC(),
	); err != nil {
		return translate(err)
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func scanRegistration(row rowScanner) (*model.Registration, error) {
	var (
		r           model.Registration
		data        []byte
		checkInTime sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.EventID, &r.SubmittedAt, &data, &r.CheckInToken, &r.CheckedIn, &checkInTime); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &r.FormData); err != nil {
		return nil, fmt.Errorf("decode form data of registration %s: %w", r.ID, err)
	}
	r.FormData.Normalize()
	if checkInTime.Valid {
		t := checkInTime.Time
		r.CheckInTime = &t
	}
	return &r, nil
}

func (s *MySQLStore) GetRegistration(ctx context.Context, eventID, id string) (*model.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE r.id = ? AND r.event_id = ?`,
		id, eventID)
	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	return r, err
}

// GetRegistrationByToken resolves the token through the checkin_tokens
// artifact so that a token from another event never matches.
func (s *MySQLStore) GetRegistrationByToken(ctx context.Context, eventID, token string) (*model.Registration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+registrationColumns+`
		   FROM checkin_tokens t
		   JOIN registrations r ON r.id = t.registration_id
		  WHERE t.token = ? AND t.event_id = ?`,
		token, eventID)
	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	return r, err
}

func (s *MySQLStore) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations r WHERE r.event_id = ? ORDER BY r.submitted_at, r.id`,
		eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// MarkCheckedIn performs the conditional update.  Only the caller whose
// UPDATE actually changed the row gets true.
func (s *MySQLStore) MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE registrations SET checked_in = 1, check_in_time = ? WHERE id = ? AND checked_in = 0`,
		at.UTC(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// OverrideCheckIn sets the flag without the checked_in guard.  A row that
// is already checked in keeps its check_in_time; MySQL evaluates the SET
// list left to right, so the time is assigned before the flag.  MySQL does
// not count unchanged rows as affected, so existence is verified
// separately by the caller.
func (s *MySQLStore) OverrideCheckIn(ctx context.Context, id string, checkedIn bool, at time.Time) error {
	var err error
	if checkedIn {
		_, err = s.db.ExecContext(ctx,
			`UPDATE registrations SET check_in_time = IF(checked_in = 1, check_in_time, ?), checked_in = 1 WHERE id = ?`,
			at.UTC(), id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE registrations SET checked_in = 0, check_in_time = NULL WHERE id = ?`, id)
	}
	return err
}
