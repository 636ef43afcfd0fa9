package sirius

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrDecode marks a malformed or incomplete remote response.
var ErrDecode = errors.New("sirius: bad response")

// startLayout is the remote service's timestamp format ("DD.MM.YYYY HH:MM:SS",
// split across two fields).
const startLayout = "02.01.2006 15:04:05"

// User is the authenticated account as the remote service sees it.
type User struct {
	ID int64
}

// Event is one timeline entry, already resolved to absolute instants.
type Event struct {
	ID   int64
	Name string

	Start time.Time
	// RegOpen/RegClose bound the registration window. The remote side ships
	// them as "hours before start" offsets; they are resolved here.
	RegOpen  time.Time
	RegClose time.Time

	Capacity int
	Enrolled int
	// Self reports whether this account is already enrolled.
	Self bool
}

// Full reports whether the event has no seats left.
func (e Event) Full() bool { return e.Capacity > 0 && e.Enrolled >= e.Capacity }

// Eligible reports whether the event can still be armed or joined:
// not full, not already joined, window not closed, and the window opens
// within the given horizon.
func (e Event) Eligible(now time.Time, horizon time.Duration) bool {
	if e.Full() || e.Self {
		return false
	}
	if e.RegClose.Before(now) {
		return false
	}
	if e.RegOpen.After(now.Add(horizon)) {
		return false
	}
	return true
}

// Timeline is the decoded catalog read for one account.
type Timeline struct {
	User   User
	Events []Event
}

// ---- wire decoding ----

// flexInt decodes a JSON number that may arrive as a number, a numeric
// string, or (for flags) a bool.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch s {
	case "null", `""`:
		*f = 0
		return nil
	case "true":
		*f = 1
		return nil
	case "false":
		*f = 0
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: not a number: %q", ErrDecode, string(b))
	}
	*f = flexInt(n)
	return nil
}

type rawEvent struct {
	ID       *flexInt `json:"ids"`
	Name     *string  `json:"enm"`
	Date     *string  `json:"db"`
	Time     *string  `json:"tb"`
	RegStart *flexInt `json:"regStartDate"`
	RegEnd   *flexInt `json:"regEndDate"`
	Limit    *flexInt `json:"peopleLimit"`
	Enrolled *flexInt `json:"enrolledAll"`
	Self     flexInt  `json:"enrolled"` // optional; absent means not enrolled
}

type rawTimeline struct {
	User   json.RawMessage            `json:"user"`
	Events map[string]json.RawMessage `json:"events"`
}

func (r rawEvent) resolve() (Event, error) {
	// Required fields; pointer-nil means the key was absent.
	switch {
	case r.ID == nil:
		return Event{}, fmt.Errorf("%w: event missing %q", ErrDecode, "ids")
	case r.Name == nil:
		return Event{}, fmt.Errorf("%w: event missing %q", ErrDecode, "enm")
	case r.Date == nil || r.Time == nil:
		return Event{}, fmt.Errorf("%w: event missing start timestamp", ErrDecode)
	case r.RegStart == nil || r.RegEnd == nil:
		return Event{}, fmt.Errorf("%w: event missing registration offsets", ErrDecode)
	case r.Limit == nil || r.Enrolled == nil:
		return Event{}, fmt.Errorf("%w: event missing capacity fields", ErrDecode)
	}

	start, err := time.ParseInLocation(startLayout, *r.Date+" "+*r.Time, time.Local)
	if err != nil {
		return Event{}, fmt.Errorf("%w: start timestamp %q %q: %v", ErrDecode, *r.Date, *r.Time, err)
	}

	return Event{
		ID:       int64(*r.ID),
		Name:     *r.Name,
		Start:    start,
		RegOpen:  start.Add(-time.Duration(*r.RegStart) * time.Hour),
		RegClose: start.Add(-time.Duration(*r.RegEnd) * time.Hour),
		Capacity: int(*r.Limit),
		Enrolled: int(*r.Enrolled),
		Self:     r.Self != 0,
	}, nil
}

func decodeTimeline(b []byte) (*Timeline, error) {
	var raw rawTimeline
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw.User) == 0 {
		return nil, fmt.Errorf("%w: missing %q", ErrDecode, "user")
	}

	var ru struct {
		ID *flexInt `json:"id"`
	}
	if err := json.Unmarshal(raw.User, &ru); err != nil {
		return nil, fmt.Errorf("%w: user: %v", ErrDecode, err)
	}
	if ru.ID == nil {
		return nil, fmt.Errorf("%w: user missing %q", ErrDecode, "id")
	}

	tl := &Timeline{User: User{ID: int64(*ru.ID)}}

	// events is a category -> list mapping; category names are irrelevant
	// here, the lists are flattened with categories in sorted order so the
	// numbering shown to the operator is stable.
	cats := make([]string, 0, len(raw.Events))
	for cat := range raw.Events {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		var list []rawEvent
		if err := json.Unmarshal(raw.Events[cat], &list); err != nil {
			return nil, fmt.Errorf("%w: events[%s]: %v", ErrDecode, cat, err)
		}
		for _, re := range list {
			ev, err := re.resolve()
			if err != nil {
				return nil, err
			}
			tl.Events = append(tl.Events, ev)
		}
	}
	return tl, nil
}
