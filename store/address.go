package store

import (
	"fmt"
	"log/slog"
)

// Collection names a top-level partition of documents.
type Collection string

// Known collections.
const (
	// CollectionMissing marks an uninitialized reference.
	CollectionMissing        Collection = ""
	CollectionSessions       Collection = "sessions"
	CollectionSessionPlayers Collection = "session-players"
)

// Collections returns every known collection.
func Collections() []Collection {
	return []Collection{CollectionSessions, CollectionSessionPlayers}
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// Subcollection names a partition nested under a single parent document.
type Subcollection string

// SubcollectionNone is the empty subcollection.
const SubcollectionNone Subcollection = ""

// Address names a document: (collection, id) or
// (collection, id, subcollection, subId).
type Address struct {
	Collection    Collection
	DocumentID    string
	Subcollection Subcollection
	SubdocumentID string
}

// Doc returns the address of a top-level document.
func Doc(c Collection, id string) Address {
	return Address{Collection: c, DocumentID: id}
}

// SubDoc returns the address of a document inside a subcollection.
func SubDoc(c Collection, id string, sub Subcollection, subID string) Address {
	return Address{Collection: c, DocumentID: id, Subcollection: sub, SubdocumentID: subID}
}

// Scope returns a query scope over a top-level collection.
func Scope(c Collection) Address {
	return Address{Collection: c}
}

// SubScope returns a query scope over the subcollection of one document.
func SubScope(c Collection, id string, sub Subcollection) Address {
	return Address{Collection: c, DocumentID: id, Subcollection: sub}
}

// IsSub reports whether the address points into a subcollection.
func (a Address) IsSub() bool {
	return a.Subcollection != SubcollectionNone
}

// ID returns the id of the addressed document, which is the subdocument id
// for subcollection addresses.
func (a Address) ID() string {
	if a.IsSub() {
		return a.SubdocumentID
	}
	return a.DocumentID
}

// WithID returns a copy of the address with its terminal id replaced.
func (a Address) WithID(id string) Address {
	if a.IsSub() {
		a.SubdocumentID = id
	} else {
		a.DocumentID = id
	}
	return a
}

// Validate checks that the address names exactly one document.
func (a Address) Validate() error {
	return a.validate(false)
}

// validate checks the address. With allowGenerated the terminal id may be
// empty, in which case the backend generates one.
func (a Address) validate(allowGenerated bool) error {
	if !a.Collection.Valid() {
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidAddress, a.Collection)
	}
	if a.IsSub() {
		if a.DocumentID == "" {
			return fmt.Errorf("%w: subcollection %q requires a parent document id", ErrInvalidAddress, a.Subcollection)
		}
		if a.SubdocumentID == "" && !allowGenerated {
			return fmt.Errorf("%w: subcollection %q requires a subdocument id", ErrInvalidAddress, a.Subcollection)
		}
		return nil
	}
	if a.DocumentID == "" && !allowGenerated {
		return fmt.Errorf("%w: document id must not be empty", ErrInvalidAddress)
	}
	return nil
}

// validateScope checks the address as a query scope.
func (a Address) validateScope() error {
	if !a.Collection.Valid() {
		return fmt.Errorf("%w: unknown collection %q", ErrInvalidAddress, a.Collection)
	}
	if a.IsSub() && a.DocumentID == "" {
		return fmt.Errorf("%w: subcollection %q requires a parent document id", ErrInvalidAddress, a.Subcollection)
	}
	return nil
}

// CollectionPath returns the slash separated path of the collection that
// holds the addressed document.
func (a Address) CollectionPath() string {
	if a.IsSub() {
		return string(a.Collection) + "/" + a.DocumentID + "/" + string(a.Subcollection)
	}
	return string(a.Collection)
}

// Path returns the slash separated path of the addressed document.
func (a Address) Path() string {
	return a.CollectionPath() + "/" + a.ID()
}

func (a Address) String() string {
	return a.Path()
}

// LogValue implements slog.LogValuer so every failure carries the full address.
func (a Address) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("collection", string(a.Collection)),
		slog.String("documentId", a.DocumentID),
	}
	if a.IsSub() || a.SubdocumentID != "" {
		attrs = append(attrs,
			slog.String("subcollection", string(a.Subcollection)),
			slog.String("subdocumentId", a.SubdocumentID),
		)
	}
	return slog.GroupValue(attrs...)
}
