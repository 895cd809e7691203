package utils

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var (
	linkRegex       = regexp.MustCompile(`(?i)\b(?:https?://)?(?:[\w-]+\.)+[\w-]{2,}(?:/[\w\-.~:/?#\[\]@!$&'()*+,;=%]*)?\b`)
	urlRegex        = regexp.MustCompile(`(?i)\bhttps?://[^\s>]+`)
	schemeRegex     = regexp.MustCompile(`(?i)https?://`)
	singleURLRegex  = regexp.MustCompile(`(?i)^https?://\S+$`)
	trailingPunctRe = regexp.MustCompile(`[.,!?'";:]+$`)
)

// HasLink reports whether text contains anything that looks like a URL,
// with or without a scheme ("example.com" counts).
func HasLink(text string) bool {
	if text == "" {
		return false
	}
	return linkRegex.MatchString(text)
}

// HasScheme reports whether raw contains an http or https scheme marker.
func HasScheme(raw string) bool {
	return schemeRegex.MatchString(raw)
}

// ExtractURLs returns every http(s) URL found in content, in order.
func ExtractURLs(content string) []string {
	matches := urlRegex.FindAllString(content, -1)
	for i, m := range matches {
		matches[i] = cleanTrailing(m)
	}
	return matches
}

// ExtractDomains returns the hostname of every parseable http(s) URL in
// text, lowercased and without a leading "www.". Duplicates are kept.
func ExtractDomains(text string) []string {
	if text == "" {
		return nil
	}
	var domains []string
	for _, raw := range ExtractURLs(text) {
		host, ok := HostFromURL(raw)
		if !ok {
			continue
		}
		domains = append(domains, host)
	}
	return domains
}

// HostFromURL parses raw and returns its normalized hostname.
func HostFromURL(raw string) (string, bool) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", false
	}
	if asciiHost, err := idna.ToASCII(host); err == nil {
		host = asciiHost
	}
	return StripWWW(host), true
}

// NormalizeDomain turns operator input such as "https://www.YouTube.com/watch"
// into the stored whitelist form "youtube.com".
func NormalizeDomain(input string) string {
	domain := strings.ToLower(strings.TrimSpace(input))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = StripWWW(domain)
	if idx := strings.IndexAny(domain, "/?#"); idx >= 0 {
		domain = domain[:idx]
	}
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return ""
	}
	if asciiDomain, err := idna.ToASCII(domain); err == nil {
		domain = asciiDomain
	}
	return domain
}

func StripWWW(host string) string {
	return strings.TrimPrefix(host, "www.")
}

// SingleURL reports whether content is exactly one http(s) URL and nothing
// else, returning the URL.
func SingleURL(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !singleURLRegex.MatchString(trimmed) {
		return "", false
	}
	return trimmed, true
}

// DomainMatch reports whether host is on the whitelist. With subdomains set,
// "m.youtube.com" matches a "youtube.com" entry.
func DomainMatch(host string, whitelist []string, subdomains bool) bool {
	host = strings.ToLower(host)
	for _, domain := range whitelist {
		if host == domain {
			return true
		}
		if subdomains && strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// cleanTrailing strips sentence punctuation glued to the end of a URL,
// keeping a closing paren only when it is balanced inside the URL.
func cleanTrailing(u string) string {
	for {
		prev := u
		if strings.HasSuffix(u, ")") && strings.Count(u, ")") > strings.Count(u, "(") {
			u = u[:len(u)-1]
			continue
		}
		u = trailingPunctRe.ReplaceAllString(u, "")
		if u == prev {
			return u
		}
	}
}
