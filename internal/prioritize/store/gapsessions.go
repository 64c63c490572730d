package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
	"github.com/taskwing-labs/prioritizer/internal/prioritize/perrors"
)

// CreateGapAnalysisSession persists one SuggestBridging call's result.
func (s *SQLiteStore) CreateGapAnalysisSession(g *models.GapAnalysisSession) error {
	if err := g.Validate(); err != nil {
		return perrors.Wrap(perrors.KindValidation, "invalid gap analysis session", err)
	}
	gapsJSON, err := json.Marshal(g.Gaps)
	if err != nil {
		return fmt.Errorf("marshal gaps: %w", err)
	}
	suggestionsJSON, err := json.Marshal(g.Suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	metricsJSON, err := json.Marshal(g.PerformanceMetrics)
	if err != nil {
		return fmt.Errorf("marshal performance metrics: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO gap_analysis_sessions (id, agent_session_id, gaps, suggestions, performance_metrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, g.ID, g.AgentSessionID, string(gapsJSON), string(suggestionsJSON), string(metricsJSON), g.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert gap analysis session: %w", err)
	}
	return nil
}

// GetGapAnalysisSession fetches one gap analysis session by id.
func (s *SQLiteStore) GetGapAnalysisSession(id string) (*models.GapAnalysisSession, error) {
	row := s.db.QueryRow(`
		SELECT id, agent_session_id, gaps, suggestions, performance_metrics, created_at
		FROM gap_analysis_sessions WHERE id = ?
	`, id)
	return scanGapAnalysisSession(row)
}

// UpdateGapAnalysisSessionSuggestions overwrites the suggestions column,
// used after AcceptBridging marks accepted suggestions as such.
func (s *SQLiteStore) UpdateGapAnalysisSessionSuggestions(id string, suggestions []models.BridgingTask) error {
	b, err := json.Marshal(suggestions)
	if err != nil {
		return fmt.Errorf("marshal suggestions: %w", err)
	}
	res, err := s.db.Exec(`UPDATE gap_analysis_sessions SET suggestions = ? WHERE id = ?`, string(b), id)
	if err != nil {
		return fmt.Errorf("update gap analysis session suggestions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return perrors.NotFound("gap_analysis_session", id)
	}
	return nil
}

func scanGapAnalysisSession(row rowScanner) (*models.GapAnalysisSession, error) {
	var g models.GapAnalysisSession
	var gapsJSON, suggestionsJSON, metricsJSON sql.NullString
	if err := row.Scan(&g.ID, &g.AgentSessionID, &gapsJSON, &suggestionsJSON, &metricsJSON, &g.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, perrors.NotFound("gap_analysis_session", "")
		}
		return nil, fmt.Errorf("scan gap analysis session: %w", err)
	}
	if gapsJSON.Valid && gapsJSON.String != "" {
		if err := json.Unmarshal([]byte(gapsJSON.String), &g.Gaps); err != nil {
			return nil, fmt.Errorf("unmarshal gaps: %w", err)
		}
	}
	if suggestionsJSON.Valid && suggestionsJSON.String != "" {
		if err := json.Unmarshal([]byte(suggestionsJSON.String), &g.Suggestions); err != nil {
			return nil, fmt.Errorf("unmarshal suggestions: %w", err)
		}
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		if err := json.Unmarshal([]byte(metricsJSON.String), &g.PerformanceMetrics); err != nil {
			return nil, fmt.Errorf("unmarshal performance metrics: %w", err)
		}
	}
	return &g, nil
}
