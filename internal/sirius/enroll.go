package sirius

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// Enroll issues exactly one enrollment request for (userID, eventID).
//
// The remote side answers with {"enrolled": "..."}: an "e" anywhere in that
// field means rejected, its absence means accepted. That substring rule is
// the service's actual contract and must not be replaced with a structured
// error code.
//
// Transport and decode failures return err != nil; callers in the retry loop
// treat them the same as a rejection.
func (s *Session) Enroll(ctx context.Context, userID, eventID int64) (accepted bool, err error) {
	form := url.Values{}
	form.Set("id", strconv.FormatInt(eventID, 10))
	form.Set("fid", s.c.cfg.FormID)
	form.Set("act", "send")
	form.Set("__api", "2")
	form.Set("f_"+s.c.cfg.UserField, strconv.FormatInt(userID, 10))
	form.Set("task", "edit")

	u := s.c.cfg.BaseURL + "/forms?fid=" + url.QueryEscape(s.c.cfg.FormID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.authorize(req)

	resp, err := s.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("enroll request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return false, fmt.Errorf("enroll request: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("enroll read: %w", err)
	}

	var out struct {
		Enrolled *string `json:"enrolled"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if out.Enrolled == nil {
		return false, fmt.Errorf("%w: missing %q", ErrDecode, "enrolled")
	}

	return !strings.Contains(*out.Enrolled, "e"), nil
}
