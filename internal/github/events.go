package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v57/github"
)

// ErrBadEvent reports an upstream payload that cannot be interpreted.
var ErrBadEvent = errors.New("malformed upstream event")

// Event types interpreted by the ledger.
const (
	TypePush   = "PushEvent"
	TypeCreate = "CreateEvent"
)

// Event is one entry of the organisation activity stream.
type Event struct {
	ID        int64
	Type      string
	Repo      string // owner/name
	Actor     string
	CreatedAt time.Time
	Payload   Payload
	Raw       json.RawMessage
}

// Payload is one of PushPayload, CreatePayload or IgnoredPayload.
type Payload interface {
	payload()
}

// PushPayload is a push to a branch.
type PushPayload struct {
	Ref    string
	Branch string
	Before string
	Head   string
	Size   int
}

// CreatePayload is a branch or tag creation.
type CreatePayload struct {
	Ref     string
	RefType string // "branch", "tag" or "repository"
}

// IgnoredPayload stands in for every event the ledger does not store.
type IgnoredPayload struct {
	Reason string
}

func (PushPayload) payload()    {}
func (CreatePayload) payload()  {}
func (IgnoredPayload) payload() {}

// Branch returns the branch an event applies to, if any.
func (e Event) Branch() (string, bool) {
	switch p := e.Payload.(type) {
	case PushPayload:
		return p.Branch, true
	case CreatePayload:
		if p.RefType == "branch" {
			return p.Ref, true
		}
	}
	return "", false
}

// Ignored reports whether the ledger should skip the event.
func (e Event) Ignored() bool {
	_, ok := e.Payload.(IgnoredPayload)
	return ok
}

// NewEvent converts an API event. Unknown event types become IgnoredPayload;
// an unparseable id or payload of a known type is an ErrBadEvent.
func NewEvent(e *gh.Event) (Event, error) {
	id, err := strconv.ParseInt(e.GetID(), 10, 64)
	if err != nil || id <= 0 {
		return Event{}, fmt.Errorf("%w: invalid id %q", ErrBadEvent, e.GetID())
	}

	ev := Event{
		ID:        id,
		Type:      e.GetType(),
		Repo:      e.GetRepo().GetName(),
		Actor:     e.GetActor().GetLogin(),
		CreatedAt: e.GetCreatedAt().Time,
	}
	if e.RawPayload != nil {
		ev.Raw = *e.RawPayload
	}

	switch ev.Type {
	case TypePush, TypeCreate:
	default:
		ev.Payload = IgnoredPayload{Reason: "type " + ev.Type}
		return ev, nil
	}

	if ev.Repo == "" {
		return Event{}, fmt.Errorf("%w: event %d has no repository", ErrBadEvent, id)
	}

	parsed, err := e.ParsePayload()
	if err != nil {
		return Event{}, fmt.Errorf("%w: event %d: %v", ErrBadEvent, id, err)
	}

	switch p := parsed.(type) {
	case *gh.PushEvent:
		ev.Payload = pushPayload(p)
	case *gh.CreateEvent:
		ev.Payload = CreatePayload{Ref: p.GetRef(), RefType: p.GetRefType()}
	default:
		return Event{}, fmt.Errorf("%w: event %d has unexpected payload %T", ErrBadEvent, id, parsed)
	}
	return ev, nil
}

func pushPayload(p *gh.PushEvent) Payload {
	branch, ok := strings.CutPrefix(p.GetRef(), "refs/heads/")
	if !ok || branch == "" {
		return IgnoredPayload{Reason: "ref " + p.GetRef()}
	}
	head := p.GetHead()
	if head == "" {
		head = p.GetAfter()
	}
	return PushPayload{
		Ref:    p.GetRef(),
		Branch: branch,
		Before: p.GetBefore(),
		Head:   head,
		Size:   p.GetSize(),
	}
}
