// Package docsync keeps UI state bound to a collaboratively edited entity
// document.
//
// A Document is provided by an external operational-transform transport.
// On top of it this package offers:
//
//   - Cursor: a path-addressed view of the document with reads, writes and
//     change notifications scoped to its path.
//   - Provider: maintains one live Cursor for a changing (document, path)
//     pair, re-pointing rather than recreating it when only the path moves.
//   - Binding: two-way binding between a UI input (Model) and a Cursor.
//   - Bus: path-keyed fan-out of value-changed notifications.
//
// Lifecycle state, snapshot reversion and the busy indicator live in the
// lifecycle, revert and busy subpackages.
package docsync
