package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digsafe/permit-service/internal/domain"
)

// ErrVersionConflict signals a stale optimistic-concurrency write.
var ErrVersionConflict = errors.New("ticket modified concurrently")

// TicketSortField enumerates caller-selectable sort columns.
type TicketSortField string

const (
	SortByCreatedAt      TicketSortField = "createdAt"
	SortByExpirationDate TicketSortField = "expirationDate"
	SortByTicketNumber   TicketSortField = "ticketNumber"
	SortByStatus         TicketSortField = "status"
)

var sortColumns = map[TicketSortField]string{
	SortByCreatedAt:      "created_at",
	SortByExpirationDate: "expiration_date",
	SortByTicketNumber:   "ticket_number",
	SortByStatus:         "status",
}

// TicketFilter captures listing parameters.
type TicketFilter struct {
	AssigneeID   *string
	Status       *domain.TicketStatus
	Organization *string
	TicketNumber *string
	SortBy       TicketSortField
	SortDesc     bool
	Limit        int
	Offset       int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByNumber(ctx context.Context, number string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	CountWithFilter(ctx context.Context, filter TicketFilter) (int64, error)
	CountByStatus(ctx context.Context, assigneeID *string) (map[domain.TicketStatus]int64, error)
	CountExpiringSoon(ctx context.Context, assigneeID *string, now time.Time, window time.Duration) (int64, error)
	LastNumberWithPrefix(ctx context.Context, prefix string) (string, error)
	FindExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error)
	FindExpired(ctx context.Context, now time.Time) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, ticket_number, organization, status, expiration_date, location,
               coordinates, address_data, notes, renewals, assigned_to, version, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, organization, status, expiration_date, location, coordinates, address_data, notes, renewals, assigned_to)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, version, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.Organization,
		ticket.Status,
		ticket.ExpirationDate,
		ticket.Location,
		ticket.Coordinates,
		ticket.AddressData,
		ticket.Notes,
		ticket.Renewals,
		ticket.AssignedTo,
	).Scan(&ticket.ID, &ticket.Version, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Update persists all mutable fields. The write is rejected when the stored
// version no longer matches the one the ticket was read at.
func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET organization=$1, status=$2, expiration_date=$3, location=$4,
            coordinates=$5, address_data=$6, notes=$7, renewals=$8, assigned_to=$9,
            version=version+1, updated_at=NOW()
        WHERE id=$10 AND version=$11
        RETURNING version, updated_at`
	err := r.pool.QueryRow(ctx, query,
		ticket.Organization,
		ticket.Status,
		ticket.ExpirationDate,
		ticket.Location,
		ticket.Coordinates,
		ticket.AddressData,
		ticket.Notes,
		ticket.Renewals,
		ticket.AssignedTo,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version, &ticket.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrVersionConflict
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ticket_number=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Organization,
		&ticket.Status,
		&ticket.ExpirationDate,
		&ticket.Location,
		&ticket.Coordinates,
		&ticket.AddressData,
		&ticket.Notes,
		&ticket.Renewals,
		&ticket.AssignedTo,
		&ticket.Version,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses, args := ticketFilterClauses(filter)

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), column, direction, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountWithFilter(ctx context.Context, filter TicketFilter) (int64, error) {
	clauses, args := ticketFilterClauses(filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM tickets WHERE %s`, strings.Join(clauses, " AND "))

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context, assigneeID *string) (map[domain.TicketStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM tickets`
	args := []any{}
	if assigneeID != nil {
		query += ` WHERE assigned_to=$1`
		args = append(args, *assigneeID)
	}
	query += ` GROUP BY status`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int64)
	for rows.Next() {
		var status domain.TicketStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *ticketRepository) CountExpiringSoon(ctx context.Context, assigneeID *string, now time.Time, window time.Duration) (int64, error) {
	query := `SELECT COUNT(*) FROM tickets WHERE status=$1 AND expiration_date > $2 AND expiration_date <= $3`
	args := []any{domain.TicketStatusOpen, now, now.Add(window)}
	if assigneeID != nil {
		args = append(args, *assigneeID)
		query += fmt.Sprintf(` AND assigned_to=$%d`, len(args))
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// LastNumberWithPrefix returns the lexicographically greatest ticket number
// starting with prefix, or empty string when none exists.
func (r *ticketRepository) LastNumberWithPrefix(ctx context.Context, prefix string) (string, error) {
	const query = `SELECT ticket_number FROM tickets WHERE ticket_number LIKE $1 ORDER BY ticket_number DESC LIMIT 1`

	var number string
	err := r.pool.QueryRow(ctx, query, prefix+"-%").Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return number, nil
}

func (r *ticketRepository) FindExpiringSoon(ctx context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE status=$1 AND expiration_date > $2 AND expiration_date <= $3 ORDER BY expiration_date`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusOpen, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) FindExpired(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE status=$1 AND expiration_date < $2 ORDER BY expiration_date`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusOpen, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func ticketFilterClauses(filter TicketFilter) ([]string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.Organization != nil && strings.TrimSpace(*filter.Organization) != "" {
		args = append(args, "%"+strings.ToLower(strings.TrimSpace(*filter.Organization))+"%")
		clauses = append(clauses, fmt.Sprintf("LOWER(organization) LIKE $%d", len(args)))
	}
	if filter.TicketNumber != nil && strings.TrimSpace(*filter.TicketNumber) != "" {
		args = append(args, "%"+strings.ToUpper(strings.TrimSpace(*filter.TicketNumber))+"%")
		clauses = append(clauses, fmt.Sprintf("ticket_number LIKE $%d", len(args)))
	}
	return clauses, args
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.TicketNumber,
			&ticket.Organization,
			&ticket.Status,
			&ticket.ExpirationDate,
			&ticket.Location,
			&ticket.Coordinates,
			&ticket.AddressData,
			&ticket.Notes,
			&ticket.Renewals,
			&ticket.AssignedTo,
			&ticket.Version,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
