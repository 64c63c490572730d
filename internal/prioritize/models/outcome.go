// Package models defines the row-backed types of the prioritization
// engine: outcomes, task embeddings, sessions, plans, scores,
// reflections, manual tasks, and dependency edges.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Direction is the user-declared verb of an Outcome.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionLaunch   Direction = "launch"
	DirectionShip     Direction = "ship"
)

// Outcome is the declarative target the prioritizer optimizes toward.
type Outcome struct {
	ID                string    `json:"id" validate:"required,uuid4"`
	UserID            string    `json:"userId" validate:"required"`
	Direction         Direction `json:"direction" validate:"required,oneof=increase decrease launch ship"`
	ObjectText        string    `json:"objectText" validate:"max=500"`
	MetricText        string    `json:"metricText" validate:"max=500"`
	Clarifier         string    `json:"clarifier" validate:"max=500"`
	AssembledText     string    `json:"assembledText"`
	IsActive          bool      `json:"isActive"`
	StatePreference   string    `json:"statePreference,omitempty"`
	DailyCapacityHours float64  `json:"dailyCapacityHours,omitempty"`
	CreatedAt         time.Time `json:"createdAt" validate:"required"`
	UpdatedAt         time.Time `json:"updatedAt" validate:"required"`
}

// Assemble renders AssembledText from direction/object/metric/clarifier.
func (o *Outcome) Assemble() {
	parts := []string{string(o.Direction), o.ObjectText}
	if o.MetricText != "" {
		parts = append(parts, "measured by "+o.MetricText)
	}
	if o.Clarifier != "" {
		parts = append(parts, o.Clarifier)
	}
	o.AssembledText = strings.TrimSpace(strings.Join(parts, " "))
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks struct tags and returns a formatted error, matching
// models.ValidateStruct's behavior in the wider codebase.
func Validate(s any) error {
	if err := validate.Struct(s); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("field '%s': rule '%s' (value: '%v')", e.StructNamespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("%s", strings.Join(msgs, "; "))
	}
	return nil
}

// Validate checks Outcome invariants beyond struct tags: 0-500 chars per
// free-text field, validated before trimming per spec §8 boundary rules.
func (o *Outcome) Validate() error {
	if len(o.ObjectText) > 500 || len(o.MetricText) > 500 || len(o.Clarifier) > 500 {
		return fmt.Errorf("outcome: object/metric/clarifier must each be <= 500 characters")
	}
	return Validate(o)
}
