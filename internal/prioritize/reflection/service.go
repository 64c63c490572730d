package reflection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/taskwing-labs/prioritizer/internal/prioritize/models"
)

// Store is the subset of the Persistent Store the reflection service
// needs, narrowed from store.SQLiteStore the way session.Repository is
// narrowed from it.
type Store interface {
	CreateReflection(r *models.Reflection) error
	ListActiveReflections(userID string) ([]*models.Reflection, error)
	DeactivateReflection(id string) error
	UpsertReflectionIntent(i *models.ReflectionIntent) error
	GetReflectionIntent(reflectionID string) (*models.ReflectionIntent, error)
}

// Service exposes the §6 reflection surfaces: CreateReflection,
// ToggleReflection, and (via Adjuster, injected into
// internal/prioritize/session.Service) AdjustPriorities.
type Service struct {
	store      Store
	classifier *Classifier
	adjuster   *Adjuster
	debouncer  *Debouncer
}

// NewService constructs a reflection Service. debouncer (may be nil) is
// triggered on every toggle; the composition root builds it with a
// callback that runs the engine's AdjustPrioritiesForLatestSession.
func NewService(store Store, classifier *Classifier, adjuster *Adjuster, debouncer *Debouncer) *Service {
	return &Service{store: store, classifier: classifier, adjuster: adjuster, debouncer: debouncer}
}

// CreateReflection persists a new reflection, classifies its intent,
// and returns both plus a recency weight as of now.
func (s *Service) CreateReflection(ctx context.Context, userID, text string, now time.Time) (*models.Reflection, *models.ReflectionIntent, error) {
	r := &models.Reflection{
		ID:                        uuid.NewString(),
		UserID:                    userID,
		Text:                      text,
		IsActiveForPrioritization: true,
		CreatedAt:                 now,
	}
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.store.CreateReflection(r); err != nil {
		return nil, nil, err
	}

	intent, err := s.classifier.Classify(ctx, r.ID, r.Text)
	if err != nil {
		return r, nil, err
	}
	if err := s.store.UpsertReflectionIntent(&intent); err != nil {
		return r, &intent, err
	}
	return r, &intent, nil
}

// ToggleReflection deactivates a reflection when active is false and
// debounces a re-adjustment trigger for userID. When active is true the
// stored flag is not changed (the Store has no reactivate operation);
// only the re-adjustment is triggered.
func (s *Service) ToggleReflection(userID, reflectionID string, active bool) error {
	if !active {
		if err := s.store.DeactivateReflection(reflectionID); err != nil {
			return err
		}
	}
	if s.debouncer != nil {
		s.debouncer.Trigger(userID)
	}
	return nil
}

// ActiveReflections lists every reflection currently eligible to bias
// prioritization for userID.
func (s *Service) ActiveReflections(userID string) ([]*models.Reflection, error) {
	return s.store.ListActiveReflections(userID)
}

// Adjuster exposes the underlying Adjuster so it can be injected into
// internal/prioritize/session.Service without an import cycle.
func (s *Service) Adjuster() *Adjuster {
	return s.adjuster
}
