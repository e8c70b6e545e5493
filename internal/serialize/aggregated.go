package serialize

import (
	"strconv"
	"strings"
	"time"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Aggregated wire format, version-tagged:
//
//	v3{group};;{createdAt};;{updatedAt};;{seenAt};;{readAt};;{members};;{minimized}
//
// Dates are fixed-point seconds or -1 when unset. Members are joined with
// ";" and hold either bare member ids (dehydrate mode) or fully serialized
// id-prefixed activities. The field separator is distinct from the "," used
// inside an activity so the two levels never collide.
const (
	aggVersionTag = "v3"
	aggFieldSep   = ";;"
	aggMemberSep  = ";"
	unsetDate     = "-1"
)

// Aggregated serializes aggregated activity groups.
//
// Dehydrate controls the member encoding. Notification-style feeds force
// full encoding because they have no separate global activity store to
// hydrate from.
type Aggregated struct {
	Dehydrate bool

	activities Activity
}

// Dumps implements Serializer for *activity.AggregatedActivity.
func (s Aggregated) Dumps(e activity.Entry) ([]byte, error) {
	g, ok := e.(*activity.AggregatedActivity)
	if !ok {
		return nil, activity.NewSerializationError("aggregated serializer got %T", e)
	}
	if strings.Contains(g.Group, aggMemberSep) {
		return nil, activity.NewSerializationError("reserved separator %q in group %q", aggMemberSep, g.Group)
	}

	var members []string
	if s.Dehydrate {
		src := g
		if !src.Dehydrated {
			src = src.Dehydrate()
		}
		members = make([]string, len(src.ActivityIDs))
		for i, aid := range src.ActivityIDs {
			members[i] = aid.String()
		}
	} else {
		if g.Dehydrated {
			return nil, activity.NewSerializationError("cannot fully encode dehydrated group %q", g.Group)
		}
		members = make([]string, len(g.Activities))
		for i, member := range g.Activities {
			encoded, err := s.activities.DumpsWithID(member)
			if err != nil {
				return nil, err
			}
			if strings.Contains(string(encoded), aggMemberSep) {
				return nil, activity.NewSerializationError("reserved separator %q in member payload", aggMemberSep)
			}
			members[i] = string(encoded)
		}
	}

	parts := []string{
		g.Group,
		dumpDate(g.CreatedAt),
		dumpDate(g.UpdatedAt),
		dumpDate(g.SeenAt),
		dumpDate(g.ReadAt),
		strings.Join(members, aggMemberSep),
		strconv.Itoa(g.MinimizedActivities),
	}
	return []byte(aggVersionTag + strings.Join(parts, aggFieldSep)), nil
}

// Loads implements Serializer.
func (s Aggregated) Loads(_ id.ID, data []byte) (activity.Entry, error) {
	raw := string(data)
	if !strings.HasPrefix(raw, aggVersionTag) {
		return nil, activity.NewSerializationError("unknown aggregated format tag in %.8q", raw)
	}
	parts := strings.Split(raw[len(aggVersionTag):], aggFieldSep)
	if len(parts) != 7 {
		return nil, activity.NewSerializationError("aggregated payload has %d fields, want 7", len(parts))
	}

	g := activity.NewAggregated(parts[0])
	var err error
	if g.CreatedAt, err = loadDate(parts[1]); err != nil {
		return nil, err
	}
	if g.UpdatedAt, err = loadDate(parts[2]); err != nil {
		return nil, err
	}
	if g.SeenAt, err = loadDate(parts[3]); err != nil {
		return nil, err
	}
	if g.ReadAt, err = loadDate(parts[4]); err != nil {
		return nil, err
	}

	if members := parts[5]; members != "" {
		for _, member := range strings.Split(members, aggMemberSep) {
			if s.Dehydrate {
				aid, perr := id.Parse(member)
				if perr != nil {
					return nil, activity.NewSerializationError("bad member id %q", member)
				}
				g.ActivityIDs = append(g.ActivityIDs, aid)
			} else {
				a, perr := s.activities.LoadsWithID([]byte(member))
				if perr != nil {
					return nil, perr
				}
				g.Activities = append(g.Activities, a)
			}
		}
	}
	g.Dehydrated = s.Dehydrate

	if g.MinimizedActivities, err = strconv.Atoi(parts[6]); err != nil {
		return nil, activity.NewSerializationError("bad minimized count %q", parts[6])
	}
	return g, nil
}

func dumpDate(t time.Time) string {
	if t.IsZero() {
		return unsetDate
	}
	return formatSeconds(t)
}

func loadDate(s string) (time.Time, error) {
	if s == unsetDate {
		return time.Time{}, nil
	}
	return parseSeconds(s)
}
