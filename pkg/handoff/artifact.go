package handoff

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is the YAML front matter of a continuation artifact.
type Header struct {
	WorkerID         int64  `yaml:"worker_id"`
	Issue            string `yaml:"issue"`
	SessionNumber    int    `yaml:"session_number"`
	PreviousSession  int    `yaml:"previous_session"`
	ContextPercent   int    `yaml:"context_percent"`
	ParentTranscript string `yaml:"parent_transcript,omitempty"`
	NextSessionID    string `yaml:"next_session_id,omitempty"`
	CreatedAt        string `yaml:"created_at"`
}

// Artifact is the continuation handed from one session to the next. It is
// the only state carried across a rollover.
type Artifact struct {
	Header  Header
	Summary string
}

const (
	frontMatterDelim = "---\n"
	summaryHeading   = "## Handoff summary\n\n"
	resumeHeading    = "\n\n## Resume\n"
)

// ArtifactName is the file name for a worker's session continuation.
func ArtifactName(workerID int64, sessionNumber int) string {
	return fmt.Sprintf("worker-%d-session-%d.md", workerID, sessionNumber)
}

// Render returns the Markdown artifact: front matter, the verbatim summary,
// then resume instructions.
func (a Artifact) Render() ([]byte, error) {
	header, err := yaml.Marshal(a.Header)
	if err != nil {
		return nil, fmt.Errorf("encode front matter: %w", err)
	}

	var b bytes.Buffer
	b.WriteString(frontMatterDelim)
	b.Write(header)
	b.WriteString(frontMatterDelim)
	fmt.Fprintf(&b, "# Continuation: %s, session %d\n\n", a.Header.Issue, a.Header.SessionNumber)
	b.WriteString(summaryHeading)
	b.WriteString(a.Summary)
	b.WriteString(resumeHeading)
	b.WriteString(a.resumeText())
	return b.Bytes(), nil
}

// Prompt is the text that opens the continuation session.
func (a Artifact) Prompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are continuing work on %s (worker %d, session %d). ",
		a.Header.Issue, a.Header.WorkerID, a.Header.SessionNumber)
	fmt.Fprintf(&b, "The previous session was rolled over at %d%% context. ", a.Header.ContextPercent)
	b.WriteString("Its handoff summary follows; treat it as the only shared state.\n\n")
	b.WriteString(a.Summary)
	return b.String()
}

func (a Artifact) resumeText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nSession %d of worker %d ended at %d%% context.\n",
		a.Header.PreviousSession, a.Header.WorkerID, a.Header.ContextPercent)
	if a.Header.ParentTranscript != "" {
		fmt.Fprintf(&b, "The full previous transcript is at %s.\n", a.Header.ParentTranscript)
	}
	if a.Header.NextSessionID != "" {
		fmt.Fprintf(&b, "Start the next session with `claude --resume %s`, or\n", a.Header.NextSessionID)
	}
	fmt.Fprintf(&b, "run `work resume %d` to print this continuation and mark it consumed.\n", a.Header.WorkerID)
	return b.String()
}

// ParseArtifact reads an artifact produced by Render.
func ParseArtifact(data []byte) (Artifact, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterDelim) {
		return Artifact{}, errors.New("continuation artifact has no front matter")
	}
	rest := text[len(frontMatterDelim):]
	end := strings.Index(rest, frontMatterDelim)
	if end < 0 {
		return Artifact{}, errors.New("continuation artifact front matter is not closed")
	}

	var a Artifact
	if err := yaml.Unmarshal([]byte(rest[:end]), &a.Header); err != nil {
		return Artifact{}, fmt.Errorf("decode front matter: %w", err)
	}

	body := rest[end+len(frontMatterDelim):]
	start := strings.Index(body, summaryHeading)
	stop := strings.LastIndex(body, resumeHeading)
	if start < 0 || stop < start+len(summaryHeading) {
		return Artifact{}, errors.New("continuation artifact has no handoff summary")
	}
	a.Summary = body[start+len(summaryHeading) : stop]
	return a, nil
}

// ReadArtifact loads and parses the artifact at path.
func ReadArtifact(path string) (Artifact, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the sessions table
	if err != nil {
		return Artifact{}, fmt.Errorf("read continuation: %w", err)
	}
	return ParseArtifact(data)
}

// writeArtifact renders a into dir and returns the file path.
func writeArtifact(dir string, a Artifact) (string, error) {
	data, err := a.Render()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create continuations dir: %w", err)
	}
	path := filepath.Join(dir, ArtifactName(a.Header.WorkerID, a.Header.SessionNumber))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write continuation: %w", err)
	}
	return path, nil
}
