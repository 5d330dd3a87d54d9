package reports

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// UsageStore keeps material usage records for the materials report.
type UsageStore interface {
	Record(ctx context.Context, u MaterialUsage) (string, error)
	// List returns usages dated within [from, to]; empty bounds are open.
	List(ctx context.Context, from, to string) ([]MaterialUsage, error)
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresUsageStore writes to the material_usages table.
type PostgresUsageStore struct {
	db execQuerier
}

// NewPostgresUsageStore accepts a *pgxpool.Pool or any compatible executor.
func NewPostgresUsageStore(db execQuerier) *PostgresUsageStore {
	if db == nil {
		panic("reports: pgx pool required")
	}
	return &PostgresUsageStore{db: db}
}

func (s *PostgresUsageStore) Record(ctx context.Context, u MaterialUsage) (string, error) {
	id := uuid.NewString()
	query := `
		INSERT INTO material_usages (id, material, quantity, staff_name, usage_date, appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query, id, u.Material, u.Quantity, u.StaffName, u.Date, u.AppointmentID); err != nil {
		return "", fmt.Errorf("reports: insert usage: %w", err)
	}
	return id, nil
}

func (s *PostgresUsageStore) List(ctx context.Context, from, to string) ([]MaterialUsage, error) {
	query := `
		SELECT material, quantity, staff_name, usage_date, appointment_id
		FROM material_usages
		WHERE ($1 = '' OR usage_date >= $1) AND ($2 = '' OR usage_date <= $2)
		ORDER BY created_at
	`
	rows, err := s.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("reports: list usages: %w", err)
	}
	defer rows.Close()

	var out []MaterialUsage
	for rows.Next() {
		var u MaterialUsage
		if err := rows.Scan(&u.Material, &u.Quantity, &u.StaffName, &u.Date, &u.AppointmentID); err != nil {
			return nil, fmt.Errorf("reports: scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// MemoryUsageStore keeps usages in insertion order.
type MemoryUsageStore struct {
	mu     sync.RWMutex
	usages []MaterialUsage
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) Record(_ context.Context, u MaterialUsage) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usages = append(s.usages, u)
	return uuid.NewString(), nil
}

func (s *MemoryUsageStore) List(_ context.Context, from, to string) ([]MaterialUsage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MaterialUsage, 0, len(s.usages))
	for _, u := range s.usages {
		if (from == "" || u.Date >= from) && (to == "" || u.Date <= to) {
			out = append(out, u)
		}
	}
	return out, nil
}
