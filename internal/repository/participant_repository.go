package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/moodi-org/pass-backend/internal/models"
	"github.com/moodi-org/pass-backend/internal/observability"
	"github.com/moodi-org/pass-backend/internal/utils"
)

const passesTable = "passes"

var participantColumns = []string{
	"id", "mi_no", "name", "email", "college", "phone",
	"image_path", "image_uploaded", "govt_id_type", "govt_id_last4",
	"pass_image_path", "created_at", "updated_at",
}

// upsertConflict refreshes the profile columns on an email conflict. Phone is
// only overwritten when the incoming row carries one.
const upsertConflict = `ON CONFLICT (email) DO UPDATE SET
	mi_no = excluded.mi_no,
	name = excluded.name,
	college = excluded.college,
	phone = CASE WHEN excluded.phone <> '' THEN excluded.phone ELSE passes.phone END,
	updated_at = CURRENT_TIMESTAMP`

// ParticipantRepository is the data access layer for participant pass records
type ParticipantRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewParticipantRepository picks the placeholder style from the driver name
func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	var placeholder sq.PlaceholderFormat = sq.Question
	if db.DriverName() == "pgx" || db.DriverName() == "postgres" {
		placeholder = sq.Dollar
	}
	return &ParticipantRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Ping checks the database connection
func (r *ParticipantRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// FindByEmail looks a participant up by its canonical email
func (r *ParticipantRepository) FindByEmail(ctx context.Context, email string) (*models.Participant, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "find_by_email", passesTable)
	defer cleanup()

	return r.findOne(ctx, sq.Eq{"email": utils.NormalizeEmail(email)})
}

func (r *ParticipantRepository) findOne(ctx context.Context, where sq.Eq) (*models.Participant, error) {
	query, args, err := r.sb.Select(participantColumns...).
		From(passesTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find query: %w", err)
	}

	var p models.Participant
	if err := r.db.GetContext(ctx, &p, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			observability.DatabaseOperations.WithLabelValues("find", "not_found").Inc()
			return nil, models.NewNotFound("not found")
		}
		observability.DatabaseOperations.WithLabelValues("find", "error").Inc()
		return nil, fmt.Errorf("find participant: %w", err)
	}

	observability.DatabaseOperations.WithLabelValues("find", "success").Inc()
	return &p, nil
}

// Upsert inserts a participant or refreshes member number, name and college
// on an existing row. The write is a single statement; the stored row is read
// back afterwards.
func (r *ParticipantRepository) Upsert(ctx context.Context, profile models.ParticipantProfile) (*models.Participant, error) {
	ctx, span, cleanup := utils.TraceDatabaseOperation(ctx, "upsert", passesTable)
	defer cleanup()

	id, err := r.upsert(ctx, r.db, profile)
	if err != nil {
		observability.DatabaseOperations.WithLabelValues("upsert", "error").Inc()
		utils.RecordErrorInSpan(span, err, nil)
		return nil, err
	}
	observability.DatabaseOperations.WithLabelValues("upsert", "success").Inc()

	return r.findOne(ctx, sq.Eq{"id": id})
}

func (r *ParticipantRepository) upsert(ctx context.Context, q sqlx.QueryerContext, profile models.ParticipantProfile) (int64, error) {
	query, args, err := r.sb.Insert(passesTable).
		Columns("email", "mi_no", "name", "college", "phone").
		Values(
			utils.NormalizeEmail(profile.Email),
			utils.SanitizeString(profile.MINo),
			utils.SanitizeString(profile.Name),
			utils.SanitizeString(profile.College),
			utils.SanitizeString(profile.Phone),
		).
		Suffix(upsertConflict).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build upsert query: %w", err)
	}

	var id int64
	if err := sqlx.GetContext(ctx, q, &id, query, args...); err != nil {
		return 0, fmt.Errorf("upsert participant: %w", err)
	}
	return id, nil
}

// BulkUpsert upserts every profile inside one transaction
func (r *ParticipantRepository) BulkUpsert(ctx context.Context, profiles []models.ParticipantProfile) (int, error) {
	ctx, span, cleanup := utils.TraceDatabaseOperation(ctx, "bulk_upsert", passesTable)
	defer cleanup()
	utils.AddSpanAttribute(span, "db.rows", len(profiles))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, profile := range profiles {
		if _, err := r.upsert(ctx, tx, profile); err != nil {
			observability.DatabaseOperations.WithLabelValues("bulk_upsert", "error").Inc()
			utils.RecordErrorInSpan(span, err, map[string]interface{}{"db.row": i})
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	observability.DatabaseOperations.WithLabelValues("bulk_upsert", "success").Inc()
	return len(profiles), nil
}

// UpdatePhoto records the stored photo and identity document fields. Pass
// image columns are left untouched.
func (r *ParticipantRepository) UpdatePhoto(ctx context.Context, email, photoPath, idType, idLast4 string) error {
	return r.update(ctx, "update_photo", email, map[string]interface{}{
		"image_path":     photoPath,
		"image_uploaded": true,
		"govt_id_type":   idType,
		"govt_id_last4":  idLast4,
	})
}

// UpdatePassImage records the generated pass file. Photo columns are left
// untouched.
func (r *ParticipantRepository) UpdatePassImage(ctx context.Context, email, passPath string) error {
	return r.update(ctx, "update_pass_image", email, map[string]interface{}{
		"pass_image_path": passPath,
	})
}

func (r *ParticipantRepository) update(ctx context.Context, operation, email string, values map[string]interface{}) error {
	ctx, span, cleanup := utils.TraceDatabaseOperation(ctx, operation, passesTable)
	defer cleanup()

	query, args, err := r.sb.Update(passesTable).
		SetMap(values).
		Set("updated_at", sq.Expr("CURRENT_TIMESTAMP")).
		Where(sq.Eq{"email": utils.NormalizeEmail(email)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", operation, err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		observability.DatabaseOperations.WithLabelValues(operation, "error").Inc()
		utils.RecordErrorInSpan(span, err, nil)
		return fmt.Errorf("%s: %w", operation, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		observability.DatabaseOperations.WithLabelValues(operation, "not_found").Inc()
		return models.NewNotFound("not found")
	}

	observability.DatabaseOperations.WithLabelValues(operation, "success").Inc()
	return nil
}
