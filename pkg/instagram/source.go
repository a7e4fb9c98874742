package instagram

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"igmonitor/pkg/collector"
	"igmonitor/pkg/models"
)

var _ collector.Source = (*Client)(nil)

// EstimateCount returns the relation size shown on the subject's profile
func (c *Client) EstimateCount(ctx context.Context, subject string, kind models.Kind) (int, error) {
	user, err := c.FetchUserProfile(ctx, subject)
	if err != nil {
		return 0, err
	}
	if user.IsPrivate && !user.FollowedByViewer {
		return 0, &Error{Type: ErrorTypePrivate, Message: fmt.Sprintf("account %s is private", subject), Code: http.StatusForbidden}
	}
	if kind == models.KindFollowees {
		return user.EdgeFollow.Count, nil
	}
	return user.EdgeFollowedBy.Count, nil
}

// Iterate pages through the subject's followers or followees
func (c *Client) Iterate(ctx context.Context, subject string, kind models.Kind) collector.Iterator {
	return &pager{client: c, subject: subject, kind: kind}
}

// pager buffers one page at a time. A failed fetch leaves the cursor where
// it was, so the next call requests the same page again.
type pager struct {
	client  *Client
	subject string
	kind    models.Kind

	userID  string
	cursor  string
	buf     []string
	started bool
	done    bool
	pages   int
}

func (p *pager) Next(ctx context.Context) (string, error) {
	for len(p.buf) == 0 {
		if p.done {
			return "", io.EOF
		}
		if err := p.fetch(ctx); err != nil {
			return "", err
		}
	}
	id := p.buf[0]
	p.buf = p.buf[1:]
	return id, nil
}

func (p *pager) fetch(ctx context.Context) error {
	if p.userID == "" {
		id, err := p.client.userID(ctx, p.subject)
		if err != nil {
			return err
		}
		p.userID = id
	}

	page, err := p.client.FetchFriendships(ctx, p.userID, p.kind, p.cursor)
	if err != nil {
		return err
	}
	p.pages++

	for _, u := range page.Users {
		if u.Username != "" {
			p.buf = append(p.buf, u.Username)
		}
	}
	next := string(page.NextMaxID)
	// a repeated cursor would loop forever
	if next == "" || (p.started && next == p.cursor) {
		p.done = true
	}
	p.cursor = next
	p.started = true

	p.client.logger.DebugWithFields("fetched page", map[string]interface{}{
		"subject": p.subject,
		"kind":    string(p.kind),
		"page":    p.pages,
		"users":   len(page.Users),
		"more":    !p.done,
	})
	return nil
}
