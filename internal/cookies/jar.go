package cookies

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
)

// JarOptions selects where source cookies come from.
// File takes precedence over Browser.
type JarOptions struct {
	File    string
	Browser string
	Domain  string
}

// Enabled reports whether any cookie source is configured
func (o JarOptions) Enabled() bool {
	return o.File != "" || o.Browser != ""
}

// NewJar builds a cookie jar holding the given cookies
func NewJar(cookies []NetscapeCookie) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	byHost := make(map[string][]*http.Cookie)
	for _, c := range cookies {
		if c.Host() == "" || c.Name == "" {
			continue
		}
		byHost[c.Host()] = append(byHost[c.Host()], c.HTTPCookie())
	}

	for host, hc := range byHost {
		jar.SetCookies(&url.URL{Scheme: "https", Host: host, Path: "/"}, hc)
	}

	return jar, nil
}

// LoadJar reads cookies from the configured source and returns a jar
// for the download client. Returns nil when no source is configured.
func LoadJar(ctx context.Context, opts JarOptions) (http.CookieJar, error) {
	var (
		cookies []NetscapeCookie
		err     error
		source  string
	)

	switch {
	case opts.File != "":
		source = opts.File
		cookies, err = NewCookieParser().ParseFile(opts.File)
	case opts.Browser != "":
		source = opts.Browser
		cookies, err = NewBrowserExtractor().Extract(ctx, ExtractOptions{
			Browser: opts.Browser,
			Domain:  opts.Domain,
		})
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	report := CheckExpiration(cookies)
	entry := log.WithFields(log.Fields{
		"source":  source,
		"cookies": report.Total,
		"domains": len(Domains(cookies)),
	})
	if report.Expired > 0 {
		entry.Warn(report.Message)
	} else {
		entry.Info(report.Message)
	}

	return NewJar(cookies)
}
