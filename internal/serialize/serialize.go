// Package serialize holds the wire codecs for timeline and activity-store
// payloads. Each codec is a pure dumps/loads pair with no side effects.
package serialize

import (
	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Serializer converts timeline entries to and from flat byte payloads.
// Storages key payloads by serialization id, so Loads receives the id
// alongside the raw data.
type Serializer interface {
	Dumps(e activity.Entry) ([]byte, error)
	Loads(aid id.ID, data []byte) (activity.Entry, error)
}

// Reference is the degenerate serializer for feeds that keep the full
// payload only in the global activity store: dumps emits just the id and
// loads yields a dehydrated reference.
type Reference struct{}

// Dumps implements Serializer.
func (Reference) Dumps(e activity.Entry) ([]byte, error) {
	return []byte(e.SerializationID().String()), nil
}

// Loads implements Serializer.
func (Reference) Loads(aid id.ID, data []byte) (activity.Entry, error) {
	if len(data) != 0 {
		parsed, err := id.Parse(string(data))
		if err != nil {
			return nil, activity.NewSerializationError("bad reference payload: %v", err)
		}
		aid = parsed
	}
	if aid.IsZero() {
		return nil, activity.NewSerializationError("reference without id")
	}
	return &activity.DehydratedActivity{ID: aid}, nil
}
