package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v57/github"
	"github.com/user/submodsync/pkg/logger"
)

// EventSource pages through an organisation's public event stream,
// newest first.
type EventSource struct {
	client *Client
	org    string
}

// NewEventSource creates an event source for org.
func NewEventSource(client *Client, org string) *EventSource {
	return &EventSource{client: client, org: org}
}

// ListEvents returns one page of events and the number of the next page,
// or 0 when there are no more pages.
func (s *EventSource) ListEvents(ctx context.Context, page int) ([]Event, int, error) {
	opts := &gh.ListOptions{Page: page, PerPage: s.client.perPage}
	raw, resp, err := s.client.client.Activity.ListEventsForOrganization(ctx, s.org, opts)
	if err != nil {
		return nil, 0, wrapAPIError(fmt.Sprintf("list events of %s (page %d)", s.org, page), err)
	}

	events := make([]Event, 0, len(raw))
	for _, e := range raw {
		ev, err := NewEvent(e)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, ev)
	}

	logger.Debug().
		Str("org", s.org).
		Int("page", page).
		Int("count", len(events)).
		Msg("Fetched events")

	return events, resp.NextPage, nil
}
