package cookies

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

// httpOnlyPrefix marks HttpOnly cookies in files written by curl and browsers
const httpOnlyPrefix = "#HttpOnly_"

// NetscapeCookie represents a single cookie from Netscape format
type NetscapeCookie struct {
	Domain     string
	Flag       string // TRUE when the cookie applies to subdomains
	Path       string
	Secure     bool
	HttpOnly   bool
	Expiration int64 // Unix timestamp, 0 for session cookies
	Name       string
	Value      string
}

// IncludeSubdomains reports whether the cookie is a domain cookie
func (c NetscapeCookie) IncludeSubdomains() bool {
	return strings.EqualFold(c.Flag, "TRUE") || strings.HasPrefix(c.Domain, ".")
}

// Host returns the cookie domain without the leading dot
func (c NetscapeCookie) Host() string {
	return strings.TrimPrefix(c.Domain, ".")
}

// Expired reports whether the cookie has expired at now.
// Session cookies never expire.
func (c NetscapeCookie) Expired(now time.Time) bool {
	return c.Expiration > 0 && c.Expiration < now.Unix()
}

// HTTPCookie converts the cookie for use with an http.CookieJar
func (c NetscapeCookie) HTTPCookie() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
	if c.IncludeSubdomains() {
		hc.Domain = c.Host()
	}
	if c.Expiration > 0 {
		hc.Expires = time.Unix(c.Expiration, 0)
	}
	return hc
}

// CookieParser handles parsing of Netscape cookie format files
type CookieParser struct{}

// NewCookieParser creates a new cookie parser
func NewCookieParser() *CookieParser {
	return &CookieParser{}
}

// ParseFile parses a Netscape format cookie file
func (p *CookieParser) ParseFile(path string) ([]NetscapeCookie, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cookie file: %w", err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads Netscape format cookies.
// Format: domain	flag	path	secure	expiration	name	value
func (p *CookieParser) Parse(r io.Reader) ([]NetscapeCookie, error) {
	var cookies []NetscapeCookie
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")

		httpOnly := false
		if strings.HasPrefix(line, httpOnlyPrefix) {
			line = strings.TrimPrefix(line, httpOnlyPrefix)
			httpOnly = true
		}

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 7 {
			// Try space-separated as fallback
			fields = strings.Fields(line)
			if len(fields) < 7 {
				return nil, fmt.Errorf("line %d: invalid format (expected 7 fields, got %d)", lineNum, len(fields))
			}
		}

		expiration, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid expiration timestamp: %w", lineNum, err)
		}

		value := fields[6]
		if len(value) >= 2 && strings.HasPrefix(value, "\"") && strings.HasSuffix(value, "\"") {
			value = value[1 : len(value)-1]
		}

		cookies = append(cookies, NetscapeCookie{
			Domain:     fields[0],
			Flag:       strings.ToUpper(fields[1]),
			Path:       fields[2],
			Secure:     strings.EqualFold(fields[3], "TRUE"),
			HttpOnly:   httpOnly,
			Expiration: expiration,
			Name:       fields[5],
			Value:      value,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read cookie file: %w", err)
	}

	if len(cookies) == 0 {
		return nil, fmt.Errorf("no valid cookies found in file")
	}

	return cookies, nil
}

// Domains returns the sorted unique domains in the cookies
func Domains(cookies []NetscapeCookie) []string {
	domainSet := make(map[string]bool)
	for _, cookie := range cookies {
		domainSet[cookie.Host()] = true
	}

	domains := make([]string, 0, len(domainSet))
	for domain := range domainSet {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	return domains
}
