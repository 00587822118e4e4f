package revert

import (
	"context"

	"github.com/brunoga/docsync"
	"github.com/brunoga/docsync/callback"
)

// CursorSetter writes fields through a document cursor, so a revert reaches
// every collaborator, and reports the document version after the write was
// acknowledged.
type CursorSetter struct {
	Cursor *docsync.Cursor
	Notify callback.Notifier
}

func (s CursorSetter) SetFields(ctx context.Context, fields any) (*int, error) {
	cb := callback.New(s.Notify)
	s.Cursor.Set(fields, func(err error, confirmed any) { cb.Call(err, confirmed) })
	if _, err := cb.Promise().Wait(ctx); err != nil {
		return nil, err
	}
	doc := s.Cursor.Document()
	if doc == nil {
		return nil, nil
	}
	v := doc.Version()
	return &v, nil
}

// DocumentVersion reads the live version from doc.
func DocumentVersion(doc docsync.Document) VersionFunc {
	return doc.Version
}

// CursorFields reads the live fields from c, for use with WithFieldsReader.
func CursorFields(c *docsync.Cursor) func() any {
	return c.Get
}
