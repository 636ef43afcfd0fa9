package sirius

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "siriusbot/pkg/logx"
)

// Wire identifiers of the Sochi Sirius deployment. The remote side keys
// everything on these: app marks timeline reads, fid selects the enrollment
// form and the f_<userField> form field carries the account's numeric id.
// Config can override them for a different deployment or a test server.
const (
	DefaultBaseURL   = "https://online.sochisirius.ru"
	DefaultAppID     = "100220230510118067"
	DefaultFormID    = "199910202940"
	DefaultUserField = "1032910003"
)

type Config struct {
	BaseURL   string
	AppID     string
	FormID    string
	UserField string

	// RequestTimeout bounds a single HTTP request.
	RequestTimeout time.Duration

	// TimelineRatePerMin throttles catalog reads across all sessions.
	// Enrollment attempts are never throttled.
	TimelineRatePerMin int
}

// Client holds per-deployment settings shared by all sessions.
type Client struct {
	cfg Config
	log logx.Logger

	// limiter paces timeline reads so repeated manual listing plus the
	// background refresh cannot hammer the catalog endpoint.
	limiter *rate.Limiter
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.AppID) == "" {
		cfg.AppID = DefaultAppID
	}
	if strings.TrimSpace(cfg.FormID) == "" {
		cfg.FormID = DefaultFormID
	}
	if strings.TrimSpace(cfg.UserField) == "" {
		cfg.UserField = DefaultUserField
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	rpm := cfg.TimelineRatePerMin
	if rpm <= 0 {
		rpm = 30
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
	}
}

// Session is one authenticated connection to the remote service.
//
// A session is exclusively owned: first by the REPL while listing events,
// then by exactly one retry loop once armed. Close is idempotent and safe
// from the owner or from shutdown force-release.
type Session struct {
	c     *Client
	token string
	login string

	hc *http.Client

	closeOnce sync.Once
}

// Session opens an authenticated session using a basic-auth token
// (base64 of "login:secret"). The login is kept only for log labels.
func (c *Client) Session(login, token string) *Session {
	return &Session{
		c:     c,
		token: token,
		login: login,
		hc:    &http.Client{Timeout: c.cfg.RequestTimeout},
	}
}

// Login returns the account label this session authenticates as.
func (s *Session) Login() string { return s.login }

// Close releases the session's connections. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.hc.CloseIdleConnections()
		s.c.log.Debug("session closed", logx.String("login", s.login))
	})
}

func (s *Session) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Basic "+s.token)
}
