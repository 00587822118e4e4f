// Package lifecycle derives an entity's publishing state from its system
// metadata and applies lifecycle actions through a REST collaborator.
package lifecycle

import (
	"time"
)

// Sys is the system metadata of an entity.
type Sys struct {
	ID               string     `json:"id"`
	Type             string     `json:"type,omitempty"`
	Version          int        `json:"version"`
	PublishedVersion *int       `json:"publishedVersion,omitempty"`
	ArchivedVersion  *int       `json:"archivedVersion,omitempty"`
	PublishedCounter int        `json:"publishedCounter,omitempty"`
	CreatedAt        time.Time  `json:"createdAt,omitzero"`
	UpdatedAt        time.Time  `json:"updatedAt,omitzero"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	ArchivedAt       *time.Time `json:"archivedAt,omitempty"`
}

// Version returns a pointer to v, for building Sys literals.
func Version(v int) *int {
	return &v
}

func (s Sys) IsPublished() bool {
	return s.PublishedVersion != nil
}

func (s Sys) IsArchived() bool {
	if s.ArchivedVersion == nil {
		return false
	}
	return s.PublishedVersion == nil || *s.ArchivedVersion > *s.PublishedVersion
}

// HasUnpublishedChanges reports edits made after the last publish. Publishing
// itself bumps the version once, hence the +1.
func (s Sys) HasUnpublishedChanges() bool {
	return s.IsPublished() && s.Version > *s.PublishedVersion+1
}

// State is the derived lifecycle state of an entity.
type State int

const (
	Draft State = iota
	Published
	PublishedWithChanges
	Archived
)

func (s State) String() string {
	switch s {
	case Draft:
		return "draft"
	case Published:
		return "published"
	case PublishedWithChanges:
		return "changed"
	case Archived:
		return "archived"
	}
	return "unknown"
}

// StateOf computes the state for sys.
func StateOf(sys Sys) State {
	switch {
	case sys.IsArchived():
		return Archived
	case sys.HasUnpublishedChanges():
		return PublishedWithChanges
	case sys.IsPublished():
		return Published
	}
	return Draft
}

// Action is a lifecycle action.
type Action int

const (
	Publish Action = iota
	Unpublish
	Archive
	Unarchive
	Delete
)

func (a Action) String() string {
	switch a {
	case Publish:
		return "publish"
	case Unpublish:
		return "unpublish"
	case Archive:
		return "archive"
	case Unarchive:
		return "unarchive"
	case Delete:
		return "delete"
	}
	return "unknown"
}

// Available lists the actions that make sense in state. Access control is
// not considered.
func Available(state State) []Action {
	switch state {
	case Draft:
		return []Action{Publish, Archive, Delete}
	case Published:
		return []Action{Unpublish}
	case PublishedWithChanges:
		return []Action{Publish, Unpublish}
	case Archived:
		return []Action{Unarchive, Delete}
	}
	return nil
}
