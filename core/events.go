package core

import (
	"context"
	"time"
)

// Event types
const (
	EventUnitCompleted          = "unit.completed"
	EventCourseProgressUpdated  = "course.progress.updated"
	EventCourseStructureChanged = "course.structure.changed"
)

// Event is a domain event published to other services.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	UserID     string                 `json:"user_id,omitempty"`
	UnitID     string                 `json:"unit_id,omitempty"`
	CourseID   string                 `json:"course_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// EventPublisher publishes domain events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, evt Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
