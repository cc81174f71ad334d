package session

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// The completion signal for a session is a pull-request URL appearing in the
// agent's output. Agents print it either bare or wrapped in a markdown link;
// both forms are matched and reconstructed into a canonical URL.

const pullRequestHost = "github.com"

var (
	// [title](https://github.com/owner/repo/pull/123)
	markdownPullURLPattern = regexp.MustCompile(`\[[^\]]*\]\(https://github\.com/([\w.-]+)/([\w.-]+)/pull/(\d+)\)`)
	// https://github.com/owner/repo/pull/123
	plainPullURLPattern = regexp.MustCompile(`https://github\.com/([\w.-]+)/([\w.-]+)/pull/(\d+)`)
)

// Matchers are tried in order; the markdown form goes first so its capture
// wins over the bare pattern matching inside the same brackets.
var pullURLPatterns = []*regexp.Regexp{
	markdownPullURLPattern,
	plainPullURLPattern,
}

// ExtractPullRequestURL scans a single output line for a pull-request URL and
// returns its canonical form, or "" if the line contains none. Pure; never
// panics on malformed input.
func ExtractPullRequestURL(line string) string {
	for _, pattern := range pullURLPatterns {
		m := pattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return fmt.Sprintf("https://%s/%s/%s/pull/%s", pullRequestHost, m[1], m[2], m[3])
	}
	return ""
}

// ValidatePullRequestURL reports whether rawURL is a well-formed pull-request
// URL on the expected host whose owner/repo equals expectedSlug
// (case-insensitive, "owner/repo" form). Malformed input yields false, never
// an error.
func ValidatePullRequestURL(rawURL, expectedSlug string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Host != pullRequestHost {
		return false
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 4 {
		return false
	}
	owner, repo, kind, id := segments[0], segments[1], segments[2], segments[3]
	if kind != "pull" {
		return false
	}
	if owner == "" || repo == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	if id == "" {
		return false
	}

	return strings.EqualFold(owner+"/"+repo, expectedSlug)
}

// RepoSlug derives the "owner/repo" slug from a repository URL, or "" when
// the URL does not carry one. Used for advisory result-URL validation.
func RepoSlug(repoURL string) string {
	u, err := url.Parse(repoURL)
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return ""
	}
	return segments[0] + "/" + strings.TrimSuffix(segments[1], ".git")
}
