package postgres

import (
	"context"
	"errors"
	"fmt"

	"vtupay/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ProviderRepo implements ports.ProviderRepository using PostgreSQL.
type ProviderRepo struct {
	pool Pool
}

// NewProviderRepo creates a new PostgreSQL provider repository.
func NewProviderRepo(pool Pool) *ProviderRepo {
	return &ProviderRepo{pool: pool}
}

const providerColumns = `name, supported_services, status, priority,
		successful_requests, failed_requests, total_requests, success_rate,
		maintenance_start, maintenance_end, updated_at`

// Upsert inserts or updates a provider's configuration. Counters are left
// alone on update so seeding at startup never resets observed history.
func (r *ProviderRepo) Upsert(ctx context.Context, p *domain.Provider) error {
	query := `
		INSERT INTO providers (name, supported_services, status, priority,
			maintenance_start, maintenance_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (name) DO UPDATE SET
			supported_services = EXCLUDED.supported_services,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			maintenance_start = EXCLUDED.maintenance_start,
			maintenance_end = EXCLUDED.maintenance_end,
			updated_at = NOW()`

	services := make([]string, len(p.SupportedServices))
	for i, s := range p.SupportedServices {
		services[i] = string(s)
	}

	if _, err := r.pool.Exec(ctx, query,
		p.Name, services, p.Status, p.Priority,
		p.MaintenanceStart, p.MaintenanceEnd,
	); err != nil {
		return fmt.Errorf("upserting provider: %w", err)
	}
	return nil
}

// GetByName retrieves a provider by name. Returns nil if not found.
func (r *ProviderRepo) GetByName(ctx context.Context, name string) (*domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE name = $1`
	p, err := scanProvider(r.pool.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// ListByService retrieves every provider supporting a service, ranked by
// priority then observed success rate. Eligibility filtering (status,
// maintenance window) is the registry's job, not the store's.
func (r *ProviderRepo) ListByService(ctx context.Context, service domain.TransactionType) ([]domain.Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers
		WHERE $1 = ANY(supported_services)
		ORDER BY priority ASC, success_rate DESC`

	rows, err := r.pool.Query(ctx, query, string(service))
	if err != nil {
		return nil, fmt.Errorf("listing providers: %w", err)
	}
	defer rows.Close()

	var providers []domain.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating providers: %w", err)
	}
	return providers, nil
}

// RecordOutcome bumps the request counters and recomputes success_rate in
// one atomic statement. Concurrent callers interleave safely because every
// term reads the row's current value inside the same UPDATE.
func (r *ProviderRepo) RecordOutcome(ctx context.Context, name string, success bool) error {
	query := `
		UPDATE providers
		SET successful_requests = successful_requests + CASE WHEN $1 THEN 1 ELSE 0 END,
		    failed_requests = failed_requests + CASE WHEN $1 THEN 0 ELSE 1 END,
		    total_requests = total_requests + 1,
		    success_rate = (successful_requests + CASE WHEN $1 THEN 1 ELSE 0 END)::float / (total_requests + 1),
		    updated_at = NOW()
		WHERE name = $2`

	tag, err := r.pool.Exec(ctx, query, success, name)
	if err != nil {
		return fmt.Errorf("recording provider outcome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("provider %s not found", name)
	}
	return nil
}

func scanProvider(row pgx.Row) (*domain.Provider, error) {
	var (
		p        domain.Provider
		services []string
	)
	err := row.Scan(
		&p.Name, &services, &p.Status, &p.Priority,
		&p.SuccessfulRequests, &p.FailedRequests, &p.TotalRequests, &p.SuccessRate,
		&p.MaintenanceStart, &p.MaintenanceEnd, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning provider: %w", err)
	}

	p.SupportedServices = make([]domain.TransactionType, len(services))
	for i, s := range services {
		p.SupportedServices[i] = domain.TransactionType(s)
	}
	return &p, nil
}
