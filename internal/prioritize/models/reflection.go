package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ReflectionIntentType classifies what a reflection is asking for.
type ReflectionIntentType string

const (
	IntentFocus      ReflectionIntentType = "focus"
	IntentAvoid      ReflectionIntentType = "avoid"
	IntentUrgency    ReflectionIntentType = "urgency"
	IntentConstraint ReflectionIntentType = "constraint"
	IntentContext    ReflectionIntentType = "context"
)

// Reflection is a user free-text note that biases future prioritization.
type Reflection struct {
	ID                       string    `json:"id" validate:"required"`
	UserID                   string    `json:"userId" validate:"required"`
	Text                     string    `json:"text" validate:"required,min=3,max=500"`
	IsActiveForPrioritization bool     `json:"isActiveForPrioritization"`
	CreatedAt                time.Time `json:"createdAt"`
}

// Validate enforces the 3-500 char bound on reflection text.
func (r *Reflection) Validate() error {
	trimmed := strings.TrimSpace(r.Text)
	if len(trimmed) < 3 || len(trimmed) > 500 {
		return fmt.Errorf("reflection: text must be 3-500 chars (got %d)", len(trimmed))
	}
	return nil
}

// RecencyWeight computes w(r) = exp(-age_days/14), clamped to [0,1],
// per §4.5's adjustment algorithm.
func (r *Reflection) RecencyWeight(now time.Time) float64 {
	ageDays := now.Sub(r.CreatedAt).Hours() / 24
	w := math.Exp(-ageDays / 14)
	return clamp(w, 0, 1)
}

// ReflectionIntent is the derived classification of a Reflection.
type ReflectionIntent struct {
	ReflectionID string               `json:"reflectionId"`
	Type         ReflectionIntentType `json:"type" validate:"required,oneof=focus avoid urgency constraint context"`
	Subtype      string               `json:"subtype,omitempty"`
	Keywords     []string             `json:"keywords,omitempty"`
	Strength     float64              `json:"strength" validate:"gte=0,lte=1"`
	Duration     string               `json:"duration,omitempty"`
	Summary      string               `json:"summary,omitempty"`
}
