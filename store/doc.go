// Package store provides a typed access layer over a schemaless document store.
//
// The package maps Go structs to raw documents and back, compiles ordered query
// constraints into store queries, and offers batched and transactional writes.
// The document store itself is reached through the [Backend] interface; the
// fsbackend package implements it on Cloud Firestore and the memstore package
// implements it in memory.
//
// # Key Features
//
//   - Schema-driven decoding of raw documents into typed entities
//   - Partial writes: fields set to [Unset] are left untouched in the store
//   - Sentinel field values (delete, increment, array union/remove)
//   - Cursor pagination and collection-group queries
//   - Auto-flushing write batches bounded at 500 operations
//   - Single- and multi-document transactions
//   - Fixed-delay retry for updates
//
// # Schemas
//
// Entities are plain structs described by a [Schema], built once from a
// template value that also supplies the defaults:
//
//	type Player struct {
//	    ID        string `doc:"id"`
//	    Username  string `doc:"username"`
//	    PositionX int    `doc:"positionX"`
//	}
//
//	var PlayerSchema = store.MustSchema(Player{Username: "player"})
//
// Pointer fields keep their shape when nil. Interface-typed fields need an
// explicit hint such as `doc:"spawn,shape=geopoint"`.
//
// # Addresses
//
// Documents are named by an [Address]:
//
//	store.Address{Collection: store.CollectionSessions, DocumentID: id}
//
// A subcollection address must carry both the parent document id and the
// subdocument id; anything else is rejected before reaching the backend.
//
// # Errors
//
// Client operations never surface backend errors. Failures are logged and
// reported through the zero value of the result: an empty id, false, or an
// empty slice. Batch operations return the sentinel errors below:
//
//   - [ErrInvalidAddress] - incomplete document address
//   - [ErrBatchClosed] - the batch was already committed
//   - [ErrCursorNotFound] - startAfter/endBefore document does not exist
//   - [ErrUnsupportedConstraint] - constraint not allowed in this query mode
//   - [ErrSchema] - a struct type cannot be described by a schema
package store
