package engine

import (
	"context"
	"time"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// CreateReflection persists and classifies a new reflection (§4.5).
func (s *Service) CreateReflection(ctx context.Context, userID, text string) (*models.Reflection, *models.ReflectionIntent, error) {
	return s.reflection.CreateReflection(ctx, userID, text, s.clock.Now())
}

// ToggleReflection deactivates a reflection (active=false; active=true
// leaves the stored flag unchanged) and debounces a re-adjustment of the
// user's latest session (§4.5). The debounced fire
// itself is wired by the composition root to AdjustPrioritiesForLatestSession,
// since the debouncer is constructed before the engine that must service it.
func (s *Service) ToggleReflection(userID, reflectionID string, active bool) error {
	return s.reflection.ToggleReflection(userID, reflectionID, active)
}

// AdjustPriorities recomputes a session's adjusted plan from a
// caller-selected subset of the user's currently active reflections
// (§4.5). An empty ids slice means "every active reflection".
func (s *Service) AdjustPriorities(ctx context.Context, sessionID string, activeReflectionIDs []string) (*models.Plan, *models.AdjustmentDiff, bool, error) {
	sess, err := s.sessions.GetSession(sessionID)
	if err != nil {
		return nil, nil, false, err
	}

	active, err := s.reflection.ActiveReflections(sess.UserID)
	if err != nil {
		return nil, nil, false, err
	}
	selected := active
	if len(activeReflectionIDs) > 0 {
		want := make(map[string]bool, len(activeReflectionIDs))
		for _, id := range activeReflectionIDs {
			want[id] = true
		}
		selected = selected[:0]
		for _, r := range active {
			if want[r.ID] {
				selected = append(selected, r)
			}
		}
	}

	return s.sessions.AdjustPriorities(ctx, sessionID, selected)
}

// AdjustPrioritiesForLatestSession re-adjusts a user's most recently
// completed session against all of their active reflections. This is
// the callback a composition root wires into reflection.NewDebouncer,
// since the debounced re-adjustment has no specific session id to act
// on until a toggle actually fires.
func (s *Service) AdjustPrioritiesForLatestSession(userID, outcomeID string) {
	sess, err := s.sessions.GetLatestCompleted(userID, outcomeID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, _, _, _ = s.AdjustPriorities(ctx, sess.ID, nil)
}
