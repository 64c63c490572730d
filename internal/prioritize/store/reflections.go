package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// reflectionMaxAge and reflectionMaxCount bound ListActiveReflections to
// the generator's input-context window (§4.2: "active reflections
// within last 30 days, up to 50"), so a long-lived account doesn't feed
// its entire reflection history into every prioritization run.
const (
	reflectionMaxAge   = 30 * 24 * time.Hour
	reflectionMaxCount = 50
)

// CreateReflection inserts a reflection note.
func (s *SQLiteStore) CreateReflection(r *models.Reflection) error {
	_, err := s.db.Exec(`
		INSERT INTO reflections (id, user_id, text, is_active_for_prioritization, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.Text, boolToInt(r.IsActiveForPrioritization), formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert reflection: %w", err)
	}
	return nil
}

// ListActiveReflections returns the reflections still eligible to bias
// prioritization, newest first: active, created within the last 30
// days, capped at 50 (§4.2's generator input-context bound).
func (s *SQLiteStore) ListActiveReflections(userID string) ([]*models.Reflection, error) {
	cutoff := formatTime(time.Now().Add(-reflectionMaxAge))
	rows, err := s.db.Query(`
		SELECT id, user_id, text, is_active_for_prioritization, created_at
		FROM reflections
		WHERE user_id = ? AND is_active_for_prioritization = 1 AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, cutoff, reflectionMaxCount)
	if err != nil {
		return nil, fmt.Errorf("list reflections: %w", err)
	}
	defer rows.Close()

	var out []*models.Reflection
	for rows.Next() {
		var r models.Reflection
		var isActive int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Text, &isActive, &createdAt); err != nil {
			return nil, fmt.Errorf("scan reflection: %w", err)
		}
		r.IsActiveForPrioritization = isActive != 0
		r.CreatedAt = parseTime(createdAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeactivateReflection retires a reflection from future adjustment passes
// without deleting its audit record.
func (s *SQLiteStore) DeactivateReflection(id string) error {
	res, err := s.db.Exec(`UPDATE reflections SET is_active_for_prioritization = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate reflection: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("reflection not found: %s", id)
	}
	return nil
}

// UpsertReflectionIntent stores the derived classification of a reflection.
func (s *SQLiteStore) UpsertReflectionIntent(i *models.ReflectionIntent) error {
	var keywords *string
	if len(i.Keywords) > 0 {
		b, err := json.Marshal(i.Keywords)
		if err != nil {
			return fmt.Errorf("marshal keywords: %w", err)
		}
		k := string(b)
		keywords = &k
	}
	_, err := s.db.Exec(`
		INSERT INTO reflection_intents (reflection_id, type, subtype, keywords, strength, duration, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(reflection_id) DO UPDATE SET
			type = excluded.type, subtype = excluded.subtype, keywords = excluded.keywords,
			strength = excluded.strength, duration = excluded.duration, summary = excluded.summary
	`, i.ReflectionID, string(i.Type), nullIfEmpty(i.Subtype), keywords, i.Strength, nullIfEmpty(i.Duration), nullIfEmpty(i.Summary))
	if err != nil {
		return fmt.Errorf("upsert reflection intent: %w", err)
	}
	return nil
}

// GetReflectionIntent fetches the derived intent for a reflection, if any.
func (s *SQLiteStore) GetReflectionIntent(reflectionID string) (*models.ReflectionIntent, error) {
	row := s.db.QueryRow(`SELECT reflection_id, type, subtype, keywords, strength, duration, summary FROM reflection_intents WHERE reflection_id = ?`, reflectionID)
	var i models.ReflectionIntent
	var subtype, keywords, duration, summary sql.NullString
	var typ string
	if err := row.Scan(&i.ReflectionID, &typ, &subtype, &keywords, &i.Strength, &duration, &summary); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan reflection intent: %w", err)
	}
	i.Type = models.ReflectionIntentType(typ)
	i.Subtype = subtype.String
	i.Duration = duration.String
	i.Summary = summary.String
	if keywords.Valid && keywords.String != "" {
		if err := json.Unmarshal([]byte(keywords.String), &i.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	return &i, nil
}
