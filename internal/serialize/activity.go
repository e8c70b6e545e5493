package serialize

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/imcyee/superstream-sub000/internal/activity"
	"github.com/imcyee/superstream-sub000/pkg/id"
)

// Field separator and the sentinel for a null target.
const (
	fieldSep     = ","
	nullSentinel = "-"
)

// Activity packs actor, verb, object, target plus optional JSON context
// and the activity time into a single comma-delimited string:
//
//	actorId,verbId,objectId,targetId[,contextJSON],timeSeconds
//
// The context JSON may itself contain commas; loads rejoins the middle
// fields, so only the four id fields must stay free of the separator.
type Activity struct{}

// Dumps implements Serializer for *activity.Activity.
func (Activity) Dumps(e activity.Entry) ([]byte, error) {
	a, ok := e.(*activity.Activity)
	if !ok {
		return nil, activity.NewSerializationError("activity serializer got %T", e)
	}
	return dumpsActivity(a, false)
}

// Loads implements Serializer.
func (Activity) Loads(aid id.ID, data []byte) (activity.Entry, error) {
	return loadsActivity(aid, data, false)
}

// DumpsWithID emits the id-prefixed canonical form used where the payload
// must survive without external keying (job payloads, hydrated aggregated
// members). The context field is always present in this form.
func (Activity) DumpsWithID(a *activity.Activity) ([]byte, error) {
	return dumpsActivity(a, true)
}

// LoadsWithID is the inverse of DumpsWithID.
func (Activity) LoadsWithID(data []byte) (*activity.Activity, error) {
	e, err := loadsActivity(id.Zero, data, true)
	if err != nil {
		return nil, err
	}
	return e.(*activity.Activity), nil
}

func dumpsActivity(a *activity.Activity, withID bool) ([]byte, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	for _, field := range []string{a.ActorID, a.ObjectID, a.TargetID} {
		if strings.Contains(field, fieldSep) {
			return nil, activity.NewSerializationError("reserved separator %q in field %q", fieldSep, field)
		}
	}
	target := a.TargetID
	if target == "" {
		target = nullSentinel
	}
	parts := make([]string, 0, 7)
	if withID {
		parts = append(parts, a.ID.String())
	}
	parts = append(parts, a.ActorID, strconv.Itoa(a.VerbID), a.ObjectID, target)
	if len(a.Context) > 0 || withID {
		ctx := a.Context
		if ctx == nil {
			ctx = map[string]interface{}{}
		}
		encoded, err := json.Marshal(ctx)
		if err != nil {
			return nil, activity.NewSerializationError("context encode: %v", err)
		}
		parts = append(parts, string(encoded))
	}
	parts = append(parts, formatSeconds(a.Time))
	return []byte(strings.Join(parts, fieldSep)), nil
}

func loadsActivity(aid id.ID, data []byte, withID bool) (activity.Entry, error) {
	parts := strings.Split(string(data), fieldSep)
	minParts := 5
	if withID {
		minParts = 6
	}
	if len(parts) < minParts {
		return nil, activity.NewSerializationError("activity payload has %d fields, want at least %d", len(parts), minParts)
	}
	if withID {
		parsed, err := id.Parse(parts[0])
		if err != nil {
			return nil, activity.NewSerializationError("bad id field: %v", err)
		}
		aid = parsed
		parts = parts[1:]
	}
	verbID, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, activity.NewSerializationError("bad verb id %q", parts[1])
	}
	at, err := parseSeconds(parts[len(parts)-1])
	if err != nil {
		return nil, err
	}
	var ctx map[string]interface{}
	if len(parts) > 5 {
		// middle fields rejoined: context JSON may contain the separator
		raw := strings.Join(parts[4:len(parts)-1], fieldSep)
		if err := json.Unmarshal([]byte(raw), &ctx); err != nil {
			return nil, activity.NewSerializationError("context decode: %v", err)
		}
		if len(ctx) == 0 {
			ctx = nil
		}
	}
	target := parts[3]
	if target == nullSentinel {
		target = ""
	}
	a := &activity.Activity{
		ID:       aid,
		ActorID:  parts[0],
		VerbID:   verbID,
		ObjectID: parts[2],
		TargetID: target,
		Time:     at,
		Context:  ctx,
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// formatSeconds encodes a time as fixed-point seconds with microsecond
// precision. Integer math keeps the round trip exact.
func formatSeconds(t time.Time) string {
	um := t.UnixMicro()
	return strconv.FormatInt(um/1_000_000, 10) + "." + pad6(um%1_000_000)
}

func parseSeconds(s string) (time.Time, error) {
	whole, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		whole, frac = s[:dot], s[dot+1:]
	}
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, activity.NewSerializationError("bad time field %q", s)
	}
	for len(frac) < 6 {
		frac += "0"
	}
	frac = frac[:6]
	micros, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return time.Time{}, activity.NewSerializationError("bad time field %q", s)
	}
	return time.UnixMicro(secs*1_000_000 + micros).UTC(), nil
}

func pad6(v int64) string {
	s := strconv.FormatInt(v, 10)
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}
