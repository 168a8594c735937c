package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digsafe/permit-service/internal/domain"
)

// AlertFilter captures alert listing parameters. AssigneeID scopes the
// result to alerts belonging to tickets assigned to that user.
type AlertFilter struct {
	AssigneeID *string
	TicketID   *string
	Type       *domain.AlertType
	UnreadOnly bool
	Limit      int
	Offset     int
}

// AlertRepository encapsulates alert persistence.
type AlertRepository interface {
	Create(ctx context.Context, alert *domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	ListWithFilter(ctx context.Context, filter AlertFilter) ([]domain.Alert, error)
	CountWithFilter(ctx context.Context, filter AlertFilter) (int64, error)
	HasRecentExpiringAlert(ctx context.Context, ticketID string, since time.Time) (bool, error)
	SetRead(ctx context.Context, id string, read bool) error
	MarkAllRead(ctx context.Context, assigneeID *string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type alertRepository struct {
	pool *pgxpool.Pool
}

// NewAlertRepository instantiates repository.
func NewAlertRepository(pool *pgxpool.Pool) AlertRepository {
	return &alertRepository{pool: pool}
}

const alertColumns = `a.id, a.ticket_id, a.type, a.message, a.severity, a.is_read, a.created_at`

func (r *alertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	const query = `
        INSERT INTO alerts (ticket_id, type, message, severity, is_read)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		alert.TicketID,
		alert.Type,
		alert.Message,
		alert.Severity,
		alert.IsRead,
	).Scan(&alert.ID, &alert.CreatedAt)
}

func (r *alertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts a WHERE a.id=$1`, alertColumns)

	var alert domain.Alert
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&alert.ID,
		&alert.TicketID,
		&alert.Type,
		&alert.Message,
		&alert.Severity,
		&alert.IsRead,
		&alert.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) ListWithFilter(ctx context.Context, filter AlertFilter) ([]domain.Alert, error) {
	from, clauses, args := alertFilterClauses(filter)

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY a.created_at DESC LIMIT %d OFFSET %d`,
		alertColumns, from, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Alert
	for rows.Next() {
		var alert domain.Alert
		if err := rows.Scan(
			&alert.ID,
			&alert.TicketID,
			&alert.Type,
			&alert.Message,
			&alert.Severity,
			&alert.IsRead,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, alert)
	}
	return result, rows.Err()
}

func (r *alertRepository) CountWithFilter(ctx context.Context, filter AlertFilter) (int64, error) {
	from, clauses, args := alertFilterClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, from, strings.Join(clauses, " AND "))

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// HasRecentExpiringAlert reports whether an expiring_soon alert was created
// for the ticket at or after since. The reconciliation pass uses this as its
// dedup window check.
func (r *alertRepository) HasRecentExpiringAlert(ctx context.Context, ticketID string, since time.Time) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM alerts
            WHERE ticket_id=$1 AND type=$2 AND created_at >= $3
        )`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, ticketID, domain.AlertTypeExpiringSoon, since).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *alertRepository) SetRead(ctx context.Context, id string, read bool) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE alerts SET is_read=$1 WHERE id=$2`, read, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *alertRepository) MarkAllRead(ctx context.Context, assigneeID *string) (int64, error) {
	query := `UPDATE alerts SET is_read=TRUE WHERE is_read=FALSE`
	args := []any{}
	if assigneeID != nil {
		args = append(args, *assigneeID)
		query += ` AND ticket_id IN (SELECT id FROM tickets WHERE assigned_to=$1)`
	}

	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func (r *alertRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM alerts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func alertFilterClauses(filter AlertFilter) (string, []string, []any) {
	from := "alerts a"
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AssigneeID != nil {
		from = "alerts a JOIN tickets t ON t.id = a.ticket_id"
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("t.assigned_to=$%d", len(args)))
	}
	if filter.TicketID != nil {
		args = append(args, *filter.TicketID)
		clauses = append(clauses, fmt.Sprintf("a.ticket_id=$%d", len(args)))
	}
	if filter.Type != nil {
		args = append(args, *filter.Type)
		clauses = append(clauses, fmt.Sprintf("a.type=$%d", len(args)))
	}
	if filter.UnreadOnly {
		clauses = append(clauses, "a.is_read=FALSE")
	}
	return from, clauses, args
}
