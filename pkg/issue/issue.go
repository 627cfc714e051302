// Package issue parses the issue references accepted on the command line:
// GitHub issue and pull request URLs, JIRA keys, and "repo:number" pairs.
package issue

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// GitHubRef is a parsed GitHub issue or pull request URL.
type GitHubRef struct {
	Host   string
	Owner  string
	Repo   string
	Kind   string // "issues" or "pull"
	Number int
}

//nolint:gochecknoglobals // static config
var (
	// Any host whose name starts with "github." (www. optional), so
	// enterprise installs such as github.example.net match.
	githubURLRe = regexp.MustCompile(`^https?://(?:www\.)?(github\.[^/\s]+)/([^/\s]+)/([^/\s]+)/(issues|pull)/(\d+)`)
	jiraKeyRe   = regexp.MustCompile(`^[A-Z][A-Z0-9]*-\d+$`)
	jiraURLRe   = regexp.MustCompile(`/browse/([A-Z][A-Z0-9]*-\d+)(?:[/?#]|$)`)
)

// ParseGitHubURL parses a GitHub issue or pull request URL.
func ParseGitHubURL(s string) (GitHubRef, bool) {
	m := githubURLRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return GitHubRef{}, false
	}
	n, err := strconv.Atoi(m[5])
	if err != nil {
		return GitHubRef{}, false
	}
	return GitHubRef{Host: m[1], Owner: m[2], Repo: m[3], Kind: m[4], Number: n}, true
}

// ParseJiraKey returns the JIRA key in s, which may be a bare key such as
// "ABC-123" or a .../browse/ABC-123 URL. Keys are uppercase only.
func ParseJiraKey(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if jiraKeyRe.MatchString(s) {
		return s, true
	}
	if m := jiraURLRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	return "", false
}

// SplitArg splits a "repo:issue" argument. URLs are returned whole.
func SplitArg(arg string) (issue, repo string) {
	if strings.Contains(arg, "://") {
		return arg, ""
	}
	if i := strings.Index(arg, ":"); i > 0 {
		return arg[i+1:], arg[:i]
	}
	return arg, ""
}

// Ref is what a worker lookup needs from an issue argument.
type Ref struct {
	Repo    string // optional repo name scope
	Number  int
	JiraKey string
}

// Key returns the lookup key: the JIRA key if set, else the number.
func (r Ref) Key() string {
	if r.JiraKey != "" {
		return r.JiraKey
	}
	return strconv.Itoa(r.Number)
}

// ParseArg resolves any supported issue argument into a Ref.
func ParseArg(arg string) (Ref, bool) {
	if gh, ok := ParseGitHubURL(arg); ok {
		return Ref{Repo: gh.Repo, Number: gh.Number}, true
	}
	if key, ok := ParseJiraKey(arg); ok {
		return Ref{JiraKey: key}, true
	}
	num, repo := SplitArg(arg)
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 {
		return Ref{}, false
	}
	return Ref{Repo: repo, Number: n}, true
}

// Slugify lowercases text, folds accents, and joins the remaining ASCII
// letters and digits with single hyphens. With maxLen > 0 the slug is cut
// back to the last hyphen that fits.
func Slugify(text string, maxLen int) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	slug := b.String()

	if maxLen > 0 && len(slug) > maxLen {
		atBoundary := slug[maxLen] == '-'
		slug = slug[:maxLen]
		if i := strings.LastIndex(slug, "-"); i > 0 && !atBoundary {
			slug = slug[:i]
		}
		slug = strings.TrimRight(slug, "-")
	}
	return slug
}
