// Package stage moves workers through their task workflow in response to
// the shell commands they run.
//
// Classify turns one observed command and its output into an Event;
// Transition maps (State, Event) to the next State plus the side effects to
// apply; Tracker loads and persists state around the two. Classify and
// Transition are pure.
package stage

import (
	"regexp"
	"strconv"
	"strings"
)

// Observation is one command a worker ran, as reported by the tool hook.
type Observation struct {
	Command     string
	Stdout      string
	Stderr      string
	ExitCode    int
	Interrupted bool
}

// Succeeded reports whether the command ran to completion with exit 0.
func (o Observation) Succeeded() bool {
	return o.ExitCode == 0 && !o.Interrupted
}

func (o Observation) output() string {
	if o.Stderr == "" {
		return o.Stdout
	}
	return o.Stdout + "\n" + o.Stderr
}

// Kind tags an Event.
type Kind int

// Event kinds, in detection order.
const (
	NoMatch Kind = iota
	ConflictResolved
	PRCreated
	Merged
	ChecksFailed
	ChecksPassed
	ConflictDetected
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case ConflictResolved:
		return "conflict_resolved"
	case PRCreated:
		return "pr_created"
	case Merged:
		return "merged"
	case ChecksFailed:
		return "checks_failed"
	case ChecksPassed:
		return "checks_passed"
	case ConflictDetected:
		return "conflict_detected"
	default:
		return "no_match"
	}
}

// Event is a classified observation. PRURL and PRNumber are set for PRCreated.
type Event struct {
	Kind     Kind
	PRURL    string
	PRNumber int
}

var (
	pullURLPattern  = regexp.MustCompile(`https?://[^\s"'<>]+/pull/(\d+)`)
	mergedPattern   = regexp.MustCompile(`\b[Mm]erged\b`)
	autoMergePat    = regexp.MustCompile(`(?i)will be (automatically )?merged`)
	checksFailPat   = regexp.MustCompile(`(?mi)\bfail|✗|^X\s`)
	checksPassPat   = regexp.MustCompile(`(?i)✓|\bpass`)
	checksPending   = regexp.MustCompile(`(?i)\b(pending|running|queued|in_progress)\b`)
	zeroCountsPat   = regexp.MustCompile(`(?i)\b0 (cancelled|failing|successful|skipped|pending)\b`)
	conflictPattern = regexp.MustCompile(`CONFLICT|Automatic merge failed`)
)

// conflictFamily are the git subcommands that can stop on a conflict.
var conflictFamily = map[string]bool{ //nolint:gochecknoglobals // static config
	"merge":       true,
	"rebase":      true,
	"pull":        true,
	"cherry-pick": true,
}

// resolvableFamily are the git subcommands that accept --continue.
var resolvableFamily = map[string]bool{ //nolint:gochecknoglobals // static config
	"merge":       true,
	"rebase":      true,
	"cherry-pick": true,
}

// Classify maps an observation to an Event. Pure function.
//
// Detection order:
//  1. ConflictResolved: a successful `git rebase|merge|cherry-pick --continue`
//  2. PRCreated: a successful `pr create` whose output has a /pull/<n> URL
//  3. Merged: a successful `pr merge` whose output confirms the merge
//  4. ChecksFailed: `pr checks` output with a failure marker
//  5. ChecksPassed: `pr checks` output with a success marker and nothing in progress
//  6. ConflictDetected: a git merge-family command whose output reports a conflict
//  7. NoMatch
//
// Resolution is checked before conflict detection since both match the
// same command family.
func Classify(obs Observation) Event {
	segments := splitCommand(obs.Command)
	out := obs.output()

	if obs.Succeeded() && anySegment(segments, isContinue) {
		return Event{Kind: ConflictResolved}
	}

	if obs.Succeeded() && anySegment(segments, ghSubcommand("create")) {
		if m := pullURLPattern.FindStringSubmatch(out); m != nil {
			n, _ := strconv.Atoi(m[1])
			return Event{Kind: PRCreated, PRURL: m[0], PRNumber: n}
		}
	}

	if obs.Succeeded() && anySegment(segments, ghSubcommand("merge")) &&
		mergedPattern.MatchString(out) && !autoMergePat.MatchString(out) {
		return Event{Kind: Merged}
	}

	if anySegment(segments, ghSubcommand("checks")) {
		summary := zeroCountsPat.ReplaceAllString(out, "")
		if checksFailPat.MatchString(summary) {
			return Event{Kind: ChecksFailed}
		}
		if checksPassPat.MatchString(summary) && !checksPending.MatchString(summary) {
			return Event{Kind: ChecksPassed}
		}
	}

	if anySegment(segments, isConflictProne) && conflictPattern.MatchString(out) {
		return Event{Kind: ConflictDetected}
	}

	return Event{Kind: NoMatch}
}

// splitCommand splits a shell command on &&, ||, ;, | and newlines and
// returns the whitespace-separated tokens of each part. Quoting is not
// interpreted.
func splitCommand(command string) [][]string {
	replacer := strings.NewReplacer("&&", "\n", "||", "\n", ";", "\n", "|", "\n")
	var segments [][]string
	for _, part := range strings.Split(replacer.Replace(command), "\n") {
		if tokens := strings.Fields(part); len(tokens) > 0 {
			segments = append(segments, tokens)
		}
	}
	return segments
}

func anySegment(segments [][]string, match func([]string) bool) bool {
	for _, seg := range segments {
		if match(seg) {
			return true
		}
	}
	return false
}

// gitSubcommand returns the subcommand of a git invocation, skipping
// leading VAR=value assignments and git's global options.
func gitSubcommand(tokens []string) (string, bool) {
	i := 0
	for i < len(tokens) && strings.Contains(tokens[i], "=") && !strings.HasPrefix(tokens[i], "-") {
		i++
	}
	if i >= len(tokens) || tokens[i] != "git" {
		return "", false
	}
	for i++; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "-C" || tok == "-c" || tok == "--git-dir" || tok == "--work-tree":
			i++ // option takes a value
		case strings.HasPrefix(tok, "-"):
		default:
			return tok, true
		}
	}
	return "", false
}

func isContinue(tokens []string) bool {
	sub, ok := gitSubcommand(tokens)
	if !ok || !resolvableFamily[sub] {
		return false
	}
	for _, tok := range tokens {
		if tok == "--continue" {
			return true
		}
	}
	return false
}

func isConflictProne(tokens []string) bool {
	sub, ok := gitSubcommand(tokens)
	return ok && conflictFamily[sub]
}

// ghSubcommand matches `<cli> pr <action>` for any CLI name (gh, ghe, a
// wrapper script), as long as "pr" is not the first token.
func ghSubcommand(action string) func([]string) bool {
	return func(tokens []string) bool {
		for i := 1; i+1 < len(tokens); i++ {
			if tokens[i] == "pr" && tokens[i+1] == action {
				return true
			}
		}
		return false
	}
}
