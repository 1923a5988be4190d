package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"medsched-service/internal/models"
	"medsched-service/internal/storage"
	"medsched-service/pkg/response"
)

type Storage struct {
	db *sql.DB
}

func New(storagePath string) (*Storage, error) {
	const op = "storage.postgres.New"

	db, err := sql.Open("postgres", storagePath)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

func (s *Storage) BeginTx(ctx context.Context) (storage.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// sqlTx unwraps the service-facing handle back to the concrete
// transaction for ExecContext/QueryContext use.
func sqlTx(tx storage.Tx) (*sql.Tx, error) {
	t, ok := tx.(*sql.Tx)
	if !ok {
		return nil, fmt.Errorf("storage.postgres: unexpected tx type %T", tx)
	}
	return t, nil
}

// mapPqError converts constraint violations into sentinel errors the
// service understands. 23P01 is the live-booking exclusion constraint
// firing, i.e. a concurrent writer won the race; 23503 means the
// referenced resource or template is gone.
func mapPqError(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err
	}
	switch pqErr.Code {
	case "23P01", "23505":
		return response.ErrConflict
	case "23503":
		return response.ErrNotFound
	}
	return err
}

// #### resources ####

func (s *Storage) ListResources(ctx context.Context, kind *models.ResourceKind) ([]*models.Resource, error) {
	const op = "storage.postgres.ListResources"

	query := `SELECT resource_id, name, kind, category, location, capacity, owner_user_id
		FROM resources`
	args := []any{}
	if kind != nil {
		query += ` WHERE kind = $1`
		args = append(args, string(*kind))
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var resources []*models.Resource
	for rows.Next() {
		var r models.Resource
		if err := rows.Scan(&r.ID, &r.Name, &r.Kind, &r.Category, &r.Location, &r.Capacity, &r.OwnerUserID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		resources = append(resources, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resources, nil
}

func (s *Storage) GetResource(ctx context.Context, id string) (*models.Resource, error) {
	const op = "storage.postgres.GetResource"

	var r models.Resource
	err := s.db.QueryRowContext(ctx,
		`SELECT resource_id, name, kind, category, location, capacity, owner_user_id
		FROM resources WHERE resource_id = $1`, id).
		Scan(&r.ID, &r.Name, &r.Kind, &r.Category, &r.Location, &r.Capacity, &r.OwnerUserID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &r, nil
}

// #### bookings ####

func (s *Storage) CreateBooking(ctx context.Context, tx storage.Tx, b *models.Booking) (string, error) {
	const op = "storage.postgres.CreateBooking"

	t, err := sqlTx(tx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	_, err = t.ExecContext(ctx,
		`INSERT INTO bookings
		(booking_id, resource_id, booking_date, start_minute, end_minute, kind, status, category, note, template_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.ResourceID, b.Date, b.Start, b.End,
		string(b.Kind), string(b.Status), b.Category, b.Note, b.TemplateID, b.CreatedBy,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return b.ID, nil
}

func (s *Storage) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	const op = "storage.postgres.GetBooking"

	var b models.Booking
	err := s.db.QueryRowContext(ctx,
		`SELECT booking_id, resource_id, booking_date, start_minute, end_minute, kind, status, category, note, template_id, created_by
		FROM bookings WHERE booking_id = $1`, id).
		Scan(&b.ID, &b.ResourceID, &b.Date, &b.Start, &b.End, &b.Kind, &b.Status, &b.Category, &b.Note, &b.TemplateID, &b.CreatedBy)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &b, nil
}

func (s *Storage) ListBookings(ctx context.Context, resourceIDs []string, from, to *time.Time) ([]*models.Booking, error) {
	const op = "storage.postgres.ListBookings"

	query := `SELECT booking_id, resource_id, booking_date, start_minute, end_minute, kind, status, category, note, template_id, created_by
		FROM bookings WHERE 1=1`
	args := []any{}

	if len(resourceIDs) > 0 {
		args = append(args, pq.Array(resourceIDs))
		query += fmt.Sprintf(` AND resource_id = ANY($%d)`, len(args))
	}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(` AND booking_date >= $%d`, len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(` AND booking_date <= $%d`, len(args))
	}
	query += ` ORDER BY booking_date, start_minute, booking_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanBookings(op, rows)
}

// ListResourceDay loads every booking of one resource on one date. With
// a non-nil tx the rows are locked FOR UPDATE, serializing the
// check-then-write against concurrent writers on the same day.
func (s *Storage) ListResourceDay(ctx context.Context, tx storage.Tx, resourceID string, date time.Time) ([]*models.Booking, error) {
	const op = "storage.postgres.ListResourceDay"

	query := `SELECT booking_id, resource_id, booking_date, start_minute, end_minute, kind, status, category, note, template_id, created_by
		FROM bookings WHERE resource_id = $1 AND booking_date = $2 ORDER BY start_minute, booking_id`

	var (
		rows *sql.Rows
		err  error
	)
	if tx != nil {
		t, terr := sqlTx(tx)
		if terr != nil {
			return nil, fmt.Errorf("%s: %w", op, terr)
		}
		rows, err = t.QueryContext(ctx, query+` FOR UPDATE`, resourceID, date)
	} else {
		rows, err = s.db.QueryContext(ctx, query, resourceID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	return scanBookings(op, rows)
}

func scanBookings(op string, rows *sql.Rows) ([]*models.Booking, error) {
	var bookings []*models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.ID, &b.ResourceID, &b.Date, &b.Start, &b.End, &b.Kind, &b.Status, &b.Category, &b.Note, &b.TemplateID, &b.CreatedBy); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		bookings = append(bookings, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return bookings, nil
}

func (s *Storage) UpdateBooking(ctx context.Context, tx storage.Tx, b *models.Booking) error {
	const op = "storage.postgres.UpdateBooking"

	t, err := sqlTx(tx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := t.ExecContext(ctx,
		`UPDATE bookings
		SET resource_id = $1, booking_date = $2, start_minute = $3, end_minute = $4,
			kind = $5, status = $6, category = $7, note = $8
		WHERE booking_id = $9`,
		b.ResourceID, b.Date, b.Start, b.End,
		string(b.Kind), string(b.Status), b.Category, b.Note, b.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) UpdateBookingStatus(ctx context.Context, id string, status models.BookingStatus) error {
	const op = "storage.postgres.UpdateBookingStatus"

	res, err := s.db.ExecContext(ctx,
		`UPDATE bookings SET status = $1 WHERE booking_id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

// #### templates ####

func (s *Storage) CreateTemplate(ctx context.Context, tpl *models.Template) (string, error) {
	const op = "storage.postgres.CreateTemplate"

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates
		(template_id, resource_id, weekdays, start_minute, end_minute, category, start_date, end_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tpl.ID, tpl.ResourceID, pq.Array(weekdayInts(tpl.Weekdays)),
		tpl.Start, tpl.End, tpl.Category, tpl.StartDate, tpl.EndDate, tpl.Active,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	return tpl.ID, nil
}

func (s *Storage) GetTemplate(ctx context.Context, id string) (*models.Template, error) {
	const op = "storage.postgres.GetTemplate"

	var tpl models.Template
	var days pq.Int64Array
	err := s.db.QueryRowContext(ctx,
		`SELECT template_id, resource_id, weekdays, start_minute, end_minute, category, start_date, end_date, active
		FROM templates WHERE template_id = $1`, id).
		Scan(&tpl.ID, &tpl.ResourceID, &days, &tpl.Start, &tpl.End, &tpl.Category, &tpl.StartDate, &tpl.EndDate, &tpl.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, response.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, d := range days {
		tpl.Weekdays = append(tpl.Weekdays, time.Weekday(d))
	}

	return &tpl, nil
}

func (s *Storage) UpdateTemplate(ctx context.Context, tpl *models.Template) error {
	const op = "storage.postgres.UpdateTemplate"

	res, err := s.db.ExecContext(ctx,
		`UPDATE templates
		SET resource_id = $1, weekdays = $2, start_minute = $3, end_minute = $4,
			category = $5, start_date = $6, end_date = $7, active = $8
		WHERE template_id = $9`,
		tpl.ResourceID, pq.Array(weekdayInts(tpl.Weekdays)),
		tpl.Start, tpl.End, tpl.Category, tpl.StartDate, tpl.EndDate, tpl.Active, tpl.ID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapPqError(err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func (s *Storage) DeleteTemplate(ctx context.Context, id string) error {
	const op = "storage.postgres.DeleteTemplate"

	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE template_id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, response.ErrNotFound)
	}

	return nil
}

func weekdayInts(days []time.Weekday) []int64 {
	out := make([]int64, 0, len(days))
	for _, d := range days {
		out = append(out, int64(d))
	}
	return out
}
