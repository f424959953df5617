package store_test

import (
	"errors"
	"testing"

	"github.com/jacentio/bomberhub/store"
)

// --- Address Tests ---

func TestAddress_Validate(t *testing.T) {
	tests := []struct {
		name    string
		addr    store.Address
		wantErr bool
	}{
		{name: "document", addr: store.Doc(store.CollectionSessions, "s1")},
		{name: "subdocument", addr: store.SubDoc(store.CollectionSessions, "s1", "moves", "m1")},
		{name: "unknown collection", addr: store.Doc("lobbies", "l1"), wantErr: true},
		{name: "missing collection", addr: store.Doc(store.CollectionMissing, "x"), wantErr: true},
		{name: "empty id", addr: store.Scope(store.CollectionSessions), wantErr: true},
		{name: "sub without parent", addr: store.SubDoc(store.CollectionSessions, "", "moves", "m1"), wantErr: true},
		{name: "sub without id", addr: store.SubScope(store.CollectionSessions, "s1", "moves"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.addr.Validate()
			if tt.wantErr && !errors.Is(err, store.ErrInvalidAddress) {
				t.Errorf("expected ErrInvalidAddress, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestAddress_Paths(t *testing.T) {
	tests := []struct {
		name     string
		addr     store.Address
		wantID   string
		wantPath string
	}{
		{name: "document", addr: store.Doc(store.CollectionSessionPlayers, "p1"), wantID: "p1", wantPath: "session-players/p1"},
		{name: "subdocument", addr: store.SubDoc(store.CollectionSessions, "s1", "moves", "m1"), wantID: "m1", wantPath: "sessions/s1/moves/m1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.addr.ID() != tt.wantID {
				t.Errorf("expected id %q, got %q", tt.wantID, tt.addr.ID())
			}
			if tt.addr.Path() != tt.wantPath {
				t.Errorf("expected path %q, got %q", tt.wantPath, tt.addr.Path())
			}
		})
	}
}

func TestAddress_WithID(t *testing.T) {
	sub := store.SubScope(store.CollectionSessions, "s1", "moves").WithID("m9")
	if sub.SubdocumentID != "m9" || sub.DocumentID != "s1" {
		t.Errorf("expected subdocument id replaced, got %+v", sub)
	}

	doc := store.Scope(store.CollectionSessions).WithID("s9")
	if doc.DocumentID != "s9" {
		t.Errorf("expected document id s9, got %q", doc.DocumentID)
	}
}
