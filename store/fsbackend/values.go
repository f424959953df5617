package fsbackend

import (
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/jacentio/bomberhub/store"
)

// toFirestore replaces store sentinels with Firestore transforms.
func toFirestore(v any) any {
	switch x := v.(type) {
	case store.Sentinel:
		switch x.Kind {
		case store.SentinelDelete:
			return firestore.Delete
		case store.SentinelServerTimestamp:
			return firestore.ServerTimestamp
		case store.SentinelIncrement:
			return firestore.Increment(x.Delta)
		case store.SentinelArrayUnion:
			return firestore.ArrayUnion(x.Elements...)
		case store.SentinelArrayRemove:
			return firestore.ArrayRemove(x.Elements...)
		}
		return nil
	case map[string]any:
		return toFirestoreMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = toFirestore(e)
		}
		return out
	}
	return v
}

func toFirestoreMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = toFirestore(v)
	}
	return out
}

// toUpdates turns dotted field paths into Firestore updates.
func toUpdates(data map[string]any) []firestore.Update {
	out := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		out = append(out, firestore.Update{Path: k, Value: toFirestore(v)})
	}
	return out
}

func toPreconditions(pre []store.Precondition) []firestore.Precondition {
	var out []firestore.Precondition
	for _, p := range pre {
		if p.Exists {
			out = append(out, firestore.Exists)
		}
		if !p.LastUpdateTime.IsZero() {
			out = append(out, firestore.LastUpdateTime(p.LastUpdateTime))
		}
	}
	return out
}

func toSnapshot(collectionPath string, snap *firestore.DocumentSnapshot) *store.Snapshot {
	out := &store.Snapshot{
		Path:   collectionPath + "/" + snap.Ref.ID,
		ID:     snap.Ref.ID,
		Native: snap,
	}
	if !snap.Exists() {
		return out
	}
	out.Exists = true
	out.Data = snap.Data()
	out.CreateTime = snap.CreateTime
	out.UpdateTime = snap.UpdateTime
	return out
}

// relativeParent returns the collection path of ref without the
// "projects/.../documents/" prefix.
func relativeParent(ref *firestore.DocumentRef) string {
	segments := []string{ref.Parent.ID}
	for doc := ref.Parent.Parent; doc != nil; doc = doc.Parent.Parent {
		segments = append(segments, doc.ID, doc.Parent.ID)
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return strings.Join(segments, "/")
}

func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, p := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// project keeps the dotted field paths of mask.
func project(data map[string]any, mask []string) map[string]any {
	out := map[string]any{}
	for _, path := range mask {
		v, ok := lookup(data, path)
		if !ok {
			continue
		}
		parts := strings.Split(path, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	return out
}
