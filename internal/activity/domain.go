package activity

import (
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Entry is one immutable activity log record.
type Entry struct {
	ID            int64            `json:"id"`
	ActorID       int64            `json:"actor_id"`
	ActorUsername string           `json:"actor_username"`
	ActorType     shared.ActorType `json:"actor_type"`
	Description   string           `json:"description"`
	ResourceType  string           `json:"resource_type,omitempty"`
	ResourceID    string           `json:"resource_id,omitempty"`
	At            time.Time        `json:"timestamp"`
}

// NewEntry builds an entry attributed to actor.
func NewEntry(actor shared.Actor, description string, at time.Time) Entry {
	return Entry{
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		ActorType:     actor.Type,
		Description:   description,
		At:            at,
	}
}

// On attaches the affected resource.
func (e Entry) On(resourceType, resourceID string) Entry {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// PageResult is a bounded, most-recent-first slice of the log.
type PageResult struct {
	Entries    []Entry
	Pagination shared.Pagination
}
