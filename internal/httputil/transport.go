// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"crypto/tls"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/pdiddy/invenio-migrator/pkg/types"
)

// NewClient returns an http.Client whose requests carry the bearer token and
// User-Agent from cfg and are spaced at least cfg.RequestDelay apart.
func NewClient(cfg types.HTTPConfig, token string, insecureSkipVerify bool) *http.Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test instances
	}

	t := &authTransport{
		base:      base,
		token:     token,
		userAgent: cfg.UserAgent,
	}
	if cfg.RequestDelay > 0 {
		t.limiter = rate.NewLimiter(rate.Every(cfg.RequestDelay), 1)
	}

	return &http.Client{Timeout: cfg.Timeout, Transport: t}
}

type authTransport struct {
	base      http.RoundTripper
	token     string
	userAgent string
	limiter   *rate.Limiter
}

// RoundTrip waits for the limiter, then sends a copy of req with the
// Authorization and User-Agent headers set.
func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	r := req.Clone(req.Context())
	if t.token != "" && r.Header.Get("Authorization") == "" {
		r.Header.Set("Authorization", "Bearer "+t.token)
	}
	if t.userAgent != "" {
		r.Header.Set("User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(r)
}
