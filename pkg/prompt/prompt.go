// Package prompt renders the instructions handed to worker sessions and to
// the reviewers they run.
package prompt

import (
	"fmt"
	"strings"
)

// DefaultCLI is the GitHub CLI used for github.com repositories.
const DefaultCLI = "gh"

// CLIForHost returns the GitHub CLI for a host: gh for github.com, ghe for
// enterprise installs.
func CLIForHost(host string) string {
	if host == "" || host == "github.com" {
		return DefaultCLI
	}
	return "ghe"
}

// TaskParams contains the inputs of a worker task prompt.
type TaskParams struct {
	TaskRef        string // what to work on, e.g. "GitHub issue #42 in myrepo: Fix login"
	CLI            string // gh or ghe; DefaultCLI when empty
	JiraKey        string // set for JIRA-tracked tasks
	WorkerID       int64
	Guidelines     string // worker_guidelines from .work.toml
	PreMergeReview bool   // require_pre_merge_review
}

// section writes a markdown section (## header + body) to the builder.
func section(b *strings.Builder, header, body string) {
	fmt.Fprintf(b, "## %s\n\n%s\n\n", header, body)
}

func cliOrDefault(cli string) string {
	if cli == "" {
		return DefaultCLI
	}
	return cli
}

// Task builds the prompt a worker session starts with.
func Task(p TaskParams) string {
	gh := cliOrDefault(p.CLI)
	id := p.WorkerID

	var b strings.Builder
	section(&b, "Task", fmt.Sprintf(
		"You are work worker %d. Your task: %s\n\nRead CLAUDE.md and any project docs it points to before changing code.",
		id, p.TaskRef))

	if p.JiraKey != "" {
		section(&b, "JIRA", fmt.Sprintf(strings.Join([]string{
			"This task is tracked in JIRA as %[1]s. Use the Atlassian MCP tools:",
			"- call `getJiraIssue` for %[1]s to read the requirements and acceptance criteria;",
			"- add a comment to %[1]s with the PR link once the PR is open.",
		}, "\n"), p.JiraKey))
	}

	section(&b, "Phase 1: Implementation", strings.Join([]string{
		"- Explore the code, then plan the change before editing.",
		"- Implement in small steps and keep the tests passing.",
		"- Add or update tests for the behaviour you change.",
	}, "\n"))

	section(&b, "Phase 2: Pull Request", strings.Join([]string{
		fmt.Sprintf("- Self-review is REQUIRED before opening the PR: run `work review %d` and address every finding.", id),
		fmt.Sprintf("- Open the PR with `%s pr create --fill`, referencing the task in the description.", gh),
	}, "\n"))

	section(&b, "Phase 3: CI & Review Loop", strings.Join([]string{
		fmt.Sprintf("- Watch CI with `%s pr checks`. Fix failures and push until every check passes.", gh),
		"- Answer every review comment, with a fix or a reply.",
		fmt.Sprintf("- Check `work messages %d` for notes from the coordinator; new ones also arrive after tool calls.", id),
	}, "\n"))

	preMerge := fmt.Sprintf("- Run `work review %d --pre-merge` before merging.", id)
	if !p.PreMergeReview {
		preMerge = fmt.Sprintf("- A pre-merge review (`work review %d --pre-merge`) is optional for this repository.", id)
	}
	section(&b, "Phase 4: Merge", strings.Join([]string{
		preMerge,
		"- NEVER merge without an approving review.",
		fmt.Sprintf("- Merge with `%s pr merge --squash` once checks are green and the PR is approved.", gh),
	}, "\n"))

	section(&b, "Phase 5: Follow-up Issues (REQUIRED)", strings.Join([]string{
		fmt.Sprintf("- File an issue with `%s issue create` for every deferred fix, TODO or idea that came up.", gh),
		"- List the new issue links in your completion summary.",
	}, "\n"))

	section(&b, "Phase 6: Completion Summary", fmt.Sprintf(strings.Join([]string{
		"Record what you did:",
		"",
		"    work done %d --summary \"...\" --files \"...\" --tests \"...\" \\",
		"      --pr-url <url> --merged --follow-ups \"...\" --lessons \"...\"",
	}, "\n"), id))

	if g := strings.TrimSpace(p.Guidelines); g != "" {
		section(&b, "Project Guidelines", g)
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// ReviewParams contains the inputs of a review prompt.
type ReviewParams struct {
	TaskRef         string
	CLI             string
	Branch          string
	PRNumber        int // 0 before the PR exists
	PreMerge        bool
	Strictness      string // lenient, normal or strict
	Guidelines      string // review_guidelines from .work.toml
	ExcludePatterns []string
}

//nolint:gochecknoglobals // static table
var strictnessText = map[string]string{
	"lenient": "Report only bugs, data loss and security problems.",
	"normal":  "Report bugs, security problems, missing tests and clear maintainability issues.",
	"strict":  "Report every issue, including naming, structure, missing tests and unclear code.",
}

// Review builds the prompt for a reviewer of a worker's changes.
func Review(p ReviewParams) string {
	gh := cliOrDefault(p.CLI)

	var b strings.Builder
	kind := "self-review"
	if p.PreMerge {
		kind = "pre-merge review"
	}
	section(&b, "Review", fmt.Sprintf("You are doing a %s of the changes for %s on branch `%s`.", kind, p.TaskRef, p.Branch))

	diff := "`git diff origin/HEAD...HEAD`"
	if p.PRNumber > 0 {
		diff = fmt.Sprintf("`%s pr diff %d`", gh, p.PRNumber)
	}
	scope := "Review the diff from " + diff + "."
	if len(p.ExcludePatterns) > 0 {
		scope += "\nSkip files matching: " + strings.Join(p.ExcludePatterns, ", ") + "."
	}
	section(&b, "Scope", scope)

	text, ok := strictnessText[p.Strictness]
	if !ok {
		text = strictnessText["normal"]
	}
	section(&b, "Strictness", text)

	if g := strings.TrimSpace(p.Guidelines); g != "" {
		section(&b, "Project Guidelines", g)
	}

	if p.PreMerge {
		checks := gh + " pr checks"
		if p.PRNumber > 0 {
			checks = fmt.Sprintf("%s pr checks %d", gh, p.PRNumber)
		}
		section(&b, "Before Merge", fmt.Sprintf(
			"Confirm `%s` is green and every review thread is resolved. Do not approve otherwise.", checks))
	}

	section(&b, "Verdict", "End with APPROVE or REQUEST CHANGES, then list each finding as `file:line severity: problem -> fix`.")

	return strings.TrimRight(b.String(), "\n") + "\n"
}
