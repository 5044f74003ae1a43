package catalog

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
)

// RobotsRules holds the Disallow prefixes that apply to the harvester.
// A rule such as "Disallow: /search" forbids /search, /search.json and
// anything else whose path starts with /search.
type RobotsRules struct {
	disallow []string
}

// Allowed reports whether path may be requested. Nil or empty rules allow everything.
func (r *RobotsRules) Allowed(path string) bool {
	if r == nil {
		return true
	}
	path = normalizePath(path)
	for _, prefix := range r.disallow {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		return "/" + p
	}
	return p
}

// LoadRobots fetches robots.txt from the host of baseURL and parses the
// rules for userAgent.
func LoadRobots(ctx context.Context, client *http.Client, baseURL, userAgent string) (*RobotsRules, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}

	body, err := FetchJSONWithClient(ctx, client, userAgent, robotsURL.String())
	if err != nil {
		return nil, err
	}
	return ParseRobots(string(body), userAgent), nil
}

// ParseRobots collects the Disallow lines of the first group whose
// User-agent is "*" or matches userAgent (case-insensitive).
func ParseRobots(body, userAgent string) *RobotsRules {
	rules := &RobotsRules{}
	scanner := bufio.NewScanner(strings.NewReader(body))

	matched := false
	inGroup := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		field, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToLower(strings.TrimSpace(field)) {
		case "user-agent":
			inGroup = !matched && (value == "*" || strings.EqualFold(value, userAgent))
			if inGroup {
				matched = true
			}
		case "disallow":
			if inGroup && value != "" {
				rules.disallow = append(rules.disallow, normalizePath(value))
			}
		}
	}
	return rules
}

// PathFromURL returns the path component of rawURL, "" when it does not parse.
func PathFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizePath(u.Path)
}
