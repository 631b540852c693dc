package repository

import (
	"context"

	"github.com/Middle-FitnessApp/diplom-middle-fitnessApp-sub000/internal/models"
)

const relationshipColumns = "id, trainee_id, coach_id, status, created_at, accepted_at, ended_at"

type RelationshipRepository struct {
	db DBTX
}

func NewRelationshipRepository(db DBTX) *RelationshipRepository {
	return &RelationshipRepository{db: db}
}

func (r *RelationshipRepository) Create(
	ctx context.Context,
	traineeID int64,
	coachID int64,
) (*models.Relationship, error) {
	query := `
		INSERT INTO relationships (trainee_id, coach_id, status)
		VALUES ($1, $2, 'pending')
		RETURNING ` + relationshipColumns

	return r.scanOne(r.db.QueryRow(ctx, query, traineeID, coachID))
}

func (r *RelationshipRepository) GetByID(
	ctx context.Context,
	relationshipID int64,
) (*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, relationshipID))
}

func (r *RelationshipRepository) GetAcceptedForTrainee(
	ctx context.Context,
	traineeID int64,
) (*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE trainee_id = $1 AND status = 'accepted'
	`
	return r.scanOne(r.db.QueryRow(ctx, query, traineeID))
}

func (r *RelationshipRepository) GetAcceptedBetween(
	ctx context.Context,
	traineeID int64,
	coachID int64,
) (*models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE trainee_id = $1 AND coach_id = $2 AND status = 'accepted'
	`
	return r.scanOne(r.db.QueryRow(ctx, query, traineeID, coachID))
}

func (r *RelationshipRepository) CountAcceptedForTraineeExcluding(
	ctx context.Context,
	traineeID int64,
	excludeID int64,
) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM relationships
		WHERE trainee_id = $1 AND status = 'accepted' AND id <> $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, traineeID, excludeID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkAccepted flips a pending row to accepted. Returns pgx.ErrNoRows when the
// row is no longer pending, so callers can treat the transition as invalid.
func (r *RelationshipRepository) MarkAccepted(
	ctx context.Context,
	relationshipID int64,
) (*models.Relationship, error) {
	query := `
		UPDATE relationships
		SET status = 'accepted', accepted_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + relationshipColumns

	return r.scanOne(r.db.QueryRow(ctx, query, relationshipID))
}

func (r *RelationshipRepository) MarkRejected(
	ctx context.Context,
	relationshipID int64,
) (*models.Relationship, error) {
	query := `
		UPDATE relationships
		SET status = 'rejected'
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + relationshipColumns

	return r.scanOne(r.db.QueryRow(ctx, query, relationshipID))
}

func (r *RelationshipRepository) MarkEnded(
	ctx context.Context,
	relationshipID int64,
) (*models.Relationship, error) {
	query := `
		UPDATE relationships
		SET status = 'ended', ended_at = NOW()
		WHERE id = $1 AND status = 'accepted'
		RETURNING ` + relationshipColumns

	return r.scanOne(r.db.QueryRow(ctx, query, relationshipID))
}

func (r *RelationshipRepository) RejectOtherPending(
	ctx context.Context,
	traineeID int64,
	keepID int64,
) error {
	_, err := r.db.Exec(ctx, `
		UPDATE relationships
		SET status = 'rejected'
		WHERE trainee_id = $1 AND id <> $2 AND status = 'pending'
	`, traineeID, keepID)
	return err
}

func (r *RelationshipRepository) ListForParticipant(
	ctx context.Context,
	participantID int64,
) ([]models.Relationship, error) {
	query := `
		SELECT ` + relationshipColumns + `
		FROM relationships
		WHERE trainee_id = $1 OR coach_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	relationships := make([]models.Relationship, 0)
	for rows.Next() {
		var relationship models.Relationship
		if err := rows.Scan(
			&relationship.ID,
			&relationship.TraineeID,
			&relationship.CoachID,
			&relationship.Status,
			&relationship.CreatedAt,
			&relationship.AcceptedAt,
			&relationship.EndedAt,
		); err != nil {
			return nil, err
		}
		relationships = append(relationships, relationship)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return relationships, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *RelationshipRepository) scanOne(row rowScanner) (*models.Relationship, error) {
	var relationship models.Relationship
	err := row.Scan(
		&relationship.ID,
		&relationship.TraineeID,
		&relationship.CoachID,
		&relationship.Status,
		&relationship.CreatedAt,
		&relationship.AcceptedAt,
		&relationship.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &relationship, nil
}
