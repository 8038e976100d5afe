package thingiverse

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the public Thingiverse API
	BaseURL = "https://api.thingiverse.com"

	// ThingEndpoint is the path pattern for a single thing
	ThingEndpoint = "/things/%d"
)

// ThingURL constructs the URL for fetching one thing
func ThingURL(baseURL string, id uint64) string {
	return strings.TrimRight(baseURL, "/") + fmt.Sprintf(ThingEndpoint, id)
}

// sameHost reports whether target points at the API host, in which case
// the bearer token is attached.
func sameHost(baseURL, target string) bool {
	b, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	t, err := url.Parse(target)
	if err != nil {
		return false
	}
	return strings.EqualFold(b.Host, t.Host)
}
