package sirius

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// FetchTimeline reads the account's upcoming events.
//
// The read is paced by the client-wide limiter and fails loudly: callers
// show the error to the operator, nothing here is retried.
func (s *Session) FetchTimeline(ctx context.Context) (*Timeline, error) {
	if err := s.c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("task", "getTimeline")
	q.Set("mobile", "1")
	q.Set("onRec", "1")
	q.Set("app", s.c.cfg.AppID)

	u := s.c.cfg.BaseURL + "/schedule?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	s.authorize(req)

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timeline request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("timeline request: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("timeline read: %w", err)
	}
	return decodeTimeline(body)
}
