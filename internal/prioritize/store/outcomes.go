package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// CreateOutcome inserts a new outcome. If it is marked active, every
// other outcome belonging to the same user is deactivated atomically,
// enforcing the "zero-or-one active outcome per user" invariant.
func (s *SQLiteStore) CreateOutcome(o *models.Outcome) error {
	o.Assemble()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if o.IsActive {
		if _, err := tx.Exec(`UPDATE user_outcomes SET is_active = 0, updated_at = ? WHERE user_id = ? AND is_active = 1`,
			formatTime(o.UpdatedAt), o.UserID); err != nil {
			return fmt.Errorf("deactivate prior outcomes: %w", err)
		}
	}

	_, err = tx.Exec(`
		INSERT INTO user_outcomes (id, user_id, direction, object_text, metric_text, clarifier, assembled_text, is_active, state_preference, daily_capacity_hours, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ID, o.UserID, string(o.Direction), o.ObjectText, o.MetricText, o.Clarifier, o.AssembledText,
		boolToInt(o.IsActive), o.StatePreference, o.DailyCapacityHours, formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return tx.Commit()
}

// ActivateOutcome marks a single outcome active and deactivates every
// other outcome owned by the same user, in one transaction.
func (s *SQLiteStore) ActivateOutcome(userID, outcomeID string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE user_outcomes SET is_active = 0, updated_at = ? WHERE user_id = ? AND is_active = 1`,
		formatTime(now), userID); err != nil {
		return fmt.Errorf("deactivate prior outcomes: %w", err)
	}
	res, err := tx.Exec(`UPDATE user_outcomes SET is_active = 1, updated_at = ? WHERE id = ? AND user_id = ?`,
		formatTime(now), outcomeID, userID)
	if err != nil {
		return fmt.Errorf("activate outcome: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("outcome not found: %s", outcomeID)
	}
	return tx.Commit()
}

// GetActiveOutcome returns the user's single active outcome, if any.
func (s *SQLiteStore) GetActiveOutcome(userID string) (*models.Outcome, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, direction, object_text, metric_text, clarifier, assembled_text, is_active, state_preference, daily_capacity_hours, created_at, updated_at
		FROM user_outcomes WHERE user_id = ? AND is_active = 1
	`, userID)
	return scanOutcome(row)
}

// GetOutcome fetches a single outcome by id.
func (s *SQLiteStore) GetOutcome(id string) (*models.Outcome, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, direction, object_text, metric_text, clarifier, assembled_text, is_active, state_preference, daily_capacity_hours, created_at, updated_at
		FROM user_outcomes WHERE id = ?
	`, id)
	return scanOutcome(row)
}

// ListOutcomes returns every outcome belonging to userID, newest first.
func (s *SQLiteStore) ListOutcomes(userID string) ([]*models.Outcome, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, direction, object_text, metric_text, clarifier, assembled_text, is_active, state_preference, daily_capacity_hours, created_at, updated_at
		FROM user_outcomes WHERE user_id = ? ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []*models.Outcome
	for rows.Next() {
		o, err := scanOutcomeRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutcome(row rowScanner) (*models.Outcome, error) {
	var o models.Outcome
	var isActive int
	var createdAt, updatedAt string
	var statePref sql.NullString
	err := row.Scan(&o.ID, &o.UserID, &o.Direction, &o.ObjectText, &o.MetricText, &o.Clarifier, &o.AssembledText,
		&isActive, &statePref, &o.DailyCapacityHours, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("outcome not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan outcome: %w", err)
	}
	o.IsActive = isActive != 0
	o.StatePreference = statePref.String
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func scanOutcomeRows(rows *sql.Rows) (*models.Outcome, error) {
	return scanOutcome(rows)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
