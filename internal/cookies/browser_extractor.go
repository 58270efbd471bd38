package cookies

import (
	"context"
	"fmt"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/chrome"
	_ "github.com/browserutils/kooky/browser/chromium"
	_ "github.com/browserutils/kooky/browser/edge"
	_ "github.com/browserutils/kooky/browser/firefox"
	_ "github.com/browserutils/kooky/browser/opera"
)

// BrowserExtractor reads cookies from locally installed browsers
type BrowserExtractor struct{}

// NewBrowserExtractor creates a new browser cookie extractor
func NewBrowserExtractor() *BrowserExtractor {
	return &BrowserExtractor{}
}

// SupportedBrowsers returns a list of supported browser names
func (e *BrowserExtractor) SupportedBrowsers() []string {
	return []string{
		"chrome",
		"chromium",
		"firefox",
		"edge",
		"opera",
	}
}

// IsSupported reports whether browser is one of SupportedBrowsers
func (e *BrowserExtractor) IsSupported(browser string) bool {
	browser = strings.ToLower(browser)
	for _, b := range e.SupportedBrowsers() {
		if b == browser {
			return true
		}
	}
	return false
}

// ExtractOptions contains options for browser cookie extraction
type ExtractOptions struct {
	Browser string // Browser name (chrome, firefox, etc.)
	Domain  string // Optional domain filter, subdomains included
}

// Extract reads the cookies of one browser, optionally limited to a domain
func (e *BrowserExtractor) Extract(ctx context.Context, opts ExtractOptions) ([]NetscapeCookie, error) {
	browser := strings.ToLower(opts.Browser)
	if !e.IsSupported(browser) {
		return nil, fmt.Errorf("unsupported browser %q (supported: %s)",
			opts.Browser, strings.Join(e.SupportedBrowsers(), ", "))
	}

	filters := []kooky.Filter{kooky.Valid}
	if opts.Domain != "" {
		filters = append(filters, kooky.DomainHasSuffix(opts.Domain))
	}

	cookies, err := kooky.ReadCookies(ctx, filters...)
	if err != nil && len(cookies) == 0 {
		return nil, fmt.Errorf("read cookies from browser: %w", err)
	}

	result := make([]NetscapeCookie, 0, len(cookies))
	for _, cookie := range cookies {
		if cookie.Browser == nil || !strings.Contains(strings.ToLower(cookie.Browser.Browser()), browser) {
			continue
		}

		domain := cookie.Domain
		flag := "FALSE"
		if strings.HasPrefix(domain, ".") {
			flag = "TRUE"
		}

		expiration := cookie.Expires.Unix()
		if cookie.Expires.IsZero() || expiration < 0 {
			expiration = 0
		}

		result = append(result, NetscapeCookie{
			Domain:     domain,
			Flag:       flag,
			Path:       cookie.Path,
			Secure:     cookie.Secure,
			HttpOnly:   cookie.HttpOnly,
			Expiration: expiration,
			Name:       cookie.Name,
			Value:      cookie.Value,
		})
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("no cookies found for browser '%s' and domain '%s'", browser, opts.Domain)
	}

	return result, nil
}
