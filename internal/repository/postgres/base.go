package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/fulfillment-api/internal/model"
	"github.com/jwalitptl/fulfillment-api/internal/repository"
	apperrors "github.com/jwalitptl/fulfillment-api/pkg/errors"
)

var _ repository.Store = (*Store)(nil)

// Store implements repository.Store on sqlx. Repositories handed out by a transactional
// Store run on its *sqlx.Tx.
type Store struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	tx  *sqlx.Tx
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db, ext: db}
}

func (s *Store) Consultations() repository.ConsultationRepository {
	return &consultationRepository{ext: s.ext}
}

func (s *Store) LabOrders() repository.LabOrderRepository {
	return &labOrderRepository{ext: s.ext}
}

func (s *Store) PharmacyOrders() repository.PharmacyOrderRepository {
	return &pharmacyOrderRepository{ext: s.ext}
}

func (s *Store) Refills() repository.RefillRepository {
	return &refillRepository{ext: s.ext}
}

func (s *Store) Partners() repository.PartnerRepository {
	return &partnerRepository{ext: s.ext}
}

func (s *Store) Patients() repository.PatientRepository {
	return &patientRepository{ext: s.ext}
}

func (s *Store) Audit() repository.AuditRepository {
	return &auditRepository{ext: s.ext}
}

func (s *Store) Outbox() repository.OutboxRepository {
	return &outboxRepository{ext: s.ext}
}

// WithTx executes fn within a transaction. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Store{db: s.db, ext: tx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// getError maps a missing row onto NotFound.
func getError(resource string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NewNotFound(resource, err)
	}
	return fmt.Errorf("failed to get %s: %w", resource, err)
}

// checkUpdated turns a zero-row versioned update into NotFound or ConcurrentModification.
func checkUpdated(ctx context.Context, ext sqlx.ExtContext, table, resource string, id uuid.UUID, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", resource, err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE id = $1)`
	if err := sqlx.GetContext(ctx, ext, &exists, query, id); err != nil {
		return fmt.Errorf("failed to check %s: %w", resource, err)
	}
	if !exists {
		return apperrors.NewNotFound(resource, nil)
	}
	return apperrors.NewConcurrentModification(resource)
}

func prepareBase(b *model.Base, version *int) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = b.CreatedAt
	}
	if *version == 0 {
		*version = 1
	}
}

type loadRow struct {
	PartnerID uuid.UUID `db:"partner_id"`
	N         int       `db:"n"`
}

// countLoads runs a sqlx.In load query and folds the rows into a map.
func countLoads(ctx context.Context, ext sqlx.ExtContext, query string, args ...interface{}) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int)
	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to build load query: %w", err)
	}

	var rows []loadRow
	if err := sqlx.SelectContext(ctx, ext, &rows, ext.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to count partner load: %w", err)
	}
	for _, r := range rows {
		out[r.PartnerID] = r.N
	}
	return out, nil
}

func statusStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}
