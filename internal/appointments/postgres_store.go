package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/radiology-ops/internal/modality"
)

// DB abstracts the pgx pool so tests can use pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const selectColumns = `id, patient_name, file_number, patient_age, exam_type, exam_list, doctor_name, ref_no,
	date, time, status, scheduled_date, room_number, preparation, performed_by, performed_by_name,
	completed_at, created_by, created_by_name, created_at, updated_at, version`

// PostgresStore persists appointments in the appointments table.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

// NewPostgresStore wraps a pgx pool.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) Create(ctx context.Context, a *Appointment) error {
	now := s.now()
	a.Version = 1
	a.UpdatedAt = now
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_name, file_number, patient_age, exam_type, exam_list, doctor_name, ref_no,
			date, time, status, scheduled_date, room_number, preparation, performed_by, performed_by_name,
			completed_at, created_by, created_by_name, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`,
		a.ID, a.PatientName, a.FileNumber, a.PatientAge, string(a.ExamType), a.ExamList, a.DoctorName, a.RefNo,
		a.Date, a.Time, string(a.Status), a.ScheduledDate, a.RoomNumber, a.Preparation, a.PerformedBy, a.PerformedByName,
		a.CompletedAt, a.CreatedBy, a.CreatedByName, a.CreatedAt, a.UpdatedAt, a.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrExists
		}
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// MergeMany upserts all patches in one transaction. Workflow columns are
// only written on insert.
func (s *PostgresStore) MergeMany(ctx context.Context, patches []Appointment) error {
	if len(patches) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("appointments: begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	now := s.now()
	for _, p := range patches {
		status := p.Status
		if status == "" {
			status = StatusPending
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (id, patient_name, file_number, patient_age, exam_type, exam_list, doctor_name, ref_no,
				date, time, status, created_at, updated_at, version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 1)
			ON CONFLICT (id) DO UPDATE SET
				patient_name = COALESCE(NULLIF(EXCLUDED.patient_name, ''), appointments.patient_name),
				file_number = COALESCE(NULLIF(EXCLUDED.file_number, ''), appointments.file_number),
				patient_age = COALESCE(NULLIF(EXCLUDED.patient_age, ''), appointments.patient_age),
				exam_type = COALESCE(NULLIF(EXCLUDED.exam_type, ''), appointments.exam_type),
				exam_list = CASE WHEN cardinality(EXCLUDED.exam_list) > 0 THEN EXCLUDED.exam_list ELSE appointments.exam_list END,
				doctor_name = COALESCE(NULLIF(EXCLUDED.doctor_name, ''), appointments.doctor_name),
				ref_no = COALESCE(NULLIF(EXCLUDED.ref_no, ''), appointments.ref_no),
				date = COALESCE(NULLIF(EXCLUDED.date, ''), appointments.date),
				time = CASE WHEN appointments.status = 'pending' THEN COALESCE(NULLIF(EXCLUDED.time, ''), appointments.time) ELSE appointments.time END,
				created_at = EXCLUDED.created_at,
				updated_at = EXCLUDED.updated_at,
				version = appointments.version + 1`,
			p.ID, p.PatientName, p.FileNumber, p.PatientAge, string(p.ExamType), p.ExamList, p.DoctorName, p.RefNo,
			p.Date, p.Time, string(status), p.CreatedAt, now,
		)
		if err != nil {
			return fmt.Errorf("appointments: merge %s: %w", p.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("appointments: commit merge: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = s.now()
	var version int64
	err := s.db.QueryRow(ctx, updateSQL+` RETURNING version`, updateArgs(a)...).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("appointments: update: %w", err)
	}
	a.Version = version
	return nil
}

// Transact locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Transact(ctx context.Context, id string, fn MutateFunc) (*Appointment, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := scanAppointment(tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: lock %s: %w", id, err)
	}
	if err := fn(a); err != nil {
		return nil, err
	}
	a.ID = id
	a.UpdatedAt = s.now()

	var version int64
	if err := tx.QueryRow(ctx, updateSQL+` RETURNING version`, updateArgs(a)...).Scan(&version); err != nil {
		return nil, fmt.Errorf("appointments: write %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit %s: %w", id, err)
	}
	a.Version = version
	return a, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM appointments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) List(ctx context.Context, q Query) ([]Appointment, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.Status != "" {
		add("status = $%d", string(q.Status))
	}
	if q.ExamType != "" {
		add("exam_type = $%d", string(q.ExamType))
	}
	if q.Date != "" {
		add("date = $%d", q.Date)
	}
	if q.ScheduledDate != "" {
		add("scheduled_date = $%d", q.ScheduledDate)
	}
	if q.From != "" {
		add("date >= $%d", q.From)
	}
	if q.To != "" {
		add("date <= $%d", q.To)
	}

	sql := `SELECT ` + selectColumns + ` FROM appointments`
	if len(where) > 0 {
		sql += ` WHERE ` + strings.Join(where, " AND ")
	}
	sql += ` ORDER BY time DESC, created_at DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteMany(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `DELETE FROM appointments WHERE id = ANY($1) RETURNING id`, ids)
	if err != nil {
		return nil, fmt.Errorf("appointments: delete batch: %w", err)
	}
	deleted, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("appointments: delete batch: %w", err)
	}
	return deleted, nil
}

const updateSQL = `
	UPDATE appointments SET
		patient_name = $2, file_number = $3, patient_age = $4, exam_type = $5, exam_list = $6,
		doctor_name = $7, ref_no = $8, date = $9, time = $10, status = $11,
		scheduled_date = $12, room_number = $13, preparation = $14,
		performed_by = $15, performed_by_name = $16, completed_at = $17,
		updated_at = $18, version = version + 1
	WHERE id = $1`

func updateArgs(a *Appointment) []any {
	return []any{
		a.ID, a.PatientName, a.FileNumber, a.PatientAge, string(a.ExamType), a.ExamList,
		a.DoctorName, a.RefNo, a.Date, a.Time, string(a.Status),
		a.ScheduledDate, a.RoomNumber, a.Preparation,
		a.PerformedBy, a.PerformedByName, a.CompletedAt,
		a.UpdatedAt,
	}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a        Appointment
		examType string
		status   string
	)
	err := row.Scan(
		&a.ID, &a.PatientName, &a.FileNumber, &a.PatientAge, &examType, &a.ExamList, &a.DoctorName, &a.RefNo,
		&a.Date, &a.Time, &status, &a.ScheduledDate, &a.RoomNumber, &a.Preparation, &a.PerformedBy, &a.PerformedByName,
		&a.CompletedAt, &a.CreatedBy, &a.CreatedByName, &a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}
	a.ExamType = modality.Tag(examType)
	a.Status = Status(status)
	return &a, nil
}
