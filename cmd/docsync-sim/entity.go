package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/brunoga/docsync/lifecycle"
	"github.com/brunoga/docsync/memdoc"
)

// localEntity is a lifecycle.Entity whose version follows a memdoc server,
// standing in for the management API during a simulation. Versions start
// at 1 and lifecycle actions bump them like any edit.
type localEntity struct {
	mu      sync.Mutex
	server  *memdoc.Server
	bumps   int
	sys     lifecycle.Sys
	deleted bool
}

func newLocalEntity(id string, server *memdoc.Server) *localEntity {
	return &localEntity{server: server, sys: lifecycle.Sys{ID: id, Type: "Entry"}}
}

func (e *localEntity) currentLocked() lifecycle.Sys {
	s := e.sys
	s.Version = e.server.Version() + e.bumps + 1
	return s
}

// Current returns the entity metadata including edits made so far.
func (e *localEntity) Current() lifecycle.Sys {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLocked()
}

func (e *localEntity) update(fn func(s *lifecycle.Sys) error) (*lifecycle.Sys, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return nil, fmt.Errorf("entity %s not found", e.sys.ID)
	}
	s := e.currentLocked()
	if err := fn(&s); err != nil {
		return nil, err
	}
	e.bumps++
	s.Version++
	e.sys = s
	out := s
	return &out, nil
}

func (e *localEntity) Publish(_ context.Context, version int) (*lifecycle.Sys, error) {
	return e.update(func(s *lifecycle.Sys) error {
		if version != s.Version {
			return fmt.Errorf("publish at version %d, current %d: %w", version, s.Version, lifecycle.ErrVersionConflict)
		}
		s.PublishedVersion = lifecycle.Version(s.Version)
		s.PublishedCounter++
		return nil
	})
}

func (e *localEntity) Unpublish(context.Context) (*lifecycle.Sys, error) {
	return e.update(func(s *lifecycle.Sys) error {
		if s.PublishedVersion == nil {
			return fmt.Errorf("entity is not published")
		}
		s.PublishedVersion = nil
		return nil
	})
}

func (e *localEntity) Archive(context.Context) (*lifecycle.Sys, error) {
	return e.update(func(s *lifecycle.Sys) error {
		if s.PublishedVersion != nil {
			return fmt.Errorf("cannot archive a published entity")
		}
		s.ArchivedVersion = lifecycle.Version(s.Version)
		return nil
	})
}

func (e *localEntity) Unarchive(context.Context) (*lifecycle.Sys, error) {
	return e.update(func(s *lifecycle.Sys) error {
		s.ArchivedVersion = nil
		return nil
	})
}

func (e *localEntity) Delete(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = true
	return nil
}
