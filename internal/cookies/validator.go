package cookies

import (
	"fmt"
	"time"
)

// ExpirationReport summarizes how many cookies are still usable
type ExpirationReport struct {
	Total     int
	Expired   int
	ExpiresAt *time.Time // earliest expiry among persistent cookies
	Message   string
}

// AllExpired reports whether no cookie is usable anymore
func (r ExpirationReport) AllExpired() bool {
	return r.Total > 0 && r.Expired == r.Total
}

// CheckExpiration checks if cookies are expired
func CheckExpiration(cookies []NetscapeCookie) ExpirationReport {
	return checkExpirationAt(cookies, time.Now())
}

func checkExpirationAt(cookies []NetscapeCookie, now time.Time) ExpirationReport {
	report := ExpirationReport{Total: len(cookies)}
	if len(cookies) == 0 {
		report.Message = "no cookies found"
		return report
	}

	var earliest int64
	for _, cookie := range cookies {
		if cookie.Expiration > 0 && (earliest == 0 || cookie.Expiration < earliest) {
			earliest = cookie.Expiration
		}
		if cookie.Expired(now) {
			report.Expired++
		}
	}

	if earliest > 0 {
		t := time.Unix(earliest, 0)
		report.ExpiresAt = &t
	}

	switch {
	case report.AllExpired():
		report.Message = fmt.Sprintf("all %d cookies expired", report.Total)
	case report.Expired > 0:
		report.Message = fmt.Sprintf("%d of %d cookies expired", report.Expired, report.Total)
	case report.ExpiresAt != nil:
		report.Message = fmt.Sprintf("all %d cookies valid, expires %s", report.Total, report.ExpiresAt.Format("2006-01-02"))
	default:
		report.Message = fmt.Sprintf("all %d cookies valid (session only)", report.Total)
	}

	return report
}
