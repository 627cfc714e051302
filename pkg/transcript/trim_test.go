package transcript_test

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"work/pkg/protocol"
	"work/pkg/transcript"
)

func toolUse(id, name string) string {
	return fmt.Sprintf(`{"type":"assistant","sessionId":"s1","message":{"role":"assistant","content":[{"type":"tool_use","id":%q,"name":%q,"input":{}}]}}`, id, name)
}

func toolResult(id, content string) string {
	return fmt.Sprintf(`{"type":"user","sessionId":"s1","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":%q,"content":%q}]}}`, id, content)
}

func runTrim(t *testing.T, input string, opts transcript.Options) (string, transcript.Stats) {
	t.Helper()
	var out bytes.Buffer
	stats, err := transcript.Trim(strings.NewReader(input), &out, opts)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	return out.String(), stats
}

func defaultOpts(threshold int) transcript.Options {
	return transcript.Options{
		Threshold:   threshold,
		TargetTools: []string{"Read", "Bash", "Grep", "Glob", "WebFetch"},
		SourcePath:  "/tmp/parent.jsonl",
	}
}

func TestTrim_SingleOversizedRead(t *testing.T) {
	content := strings.Repeat("x", 1000)
	input := toolUse("toolu_1", "Read") + "\n" + toolResult("toolu_1", content) + "\n"

	out, stats := runTrim(t, input, defaultOpts(500))

	if stats.Trimmed != 1 {
		t.Fatalf("Trimmed = %d, want 1", stats.Trimmed)
	}
	if stats.OriginalBytes != int64(len(input)) || stats.NewBytes != int64(len(out)) {
		t.Errorf("byte stats = %d/%d, want %d/%d", stats.OriginalBytes, stats.NewBytes, len(input), len(out))
	}
	if stats.Saved != stats.OriginalBytes-stats.NewBytes || stats.Saved <= 0 {
		t.Errorf("Saved = %d", stats.Saved)
	}

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	got := gjson.Get(lines[1], "message.content.0.content").String()
	notice := transcript.Notice(1000, 2, "/tmp/parent.jsonl")
	if got != strings.Repeat("x", 500)+notice {
		t.Errorf("truncated content = %q", got)
	}
	if len(got) >= 1000+len(notice) {
		t.Errorf("truncated content is %d bytes, want < %d", len(got), 1000+len(notice))
	}
	if lines[0] != toolUse("toolu_1", "Read") {
		t.Error("assistant record changed")
	}
}

func TestTrim_NeverGrows(t *testing.T) {
	inputs := map[string]string{
		"short results": toolUse("a", "Read") + "\n" + toolResult("a", "short") + "\n",
		"just over threshold": toolUse("a", "Read") + "\n" +
			toolResult("a", strings.Repeat("y", 510)) + "\n",
		"html-ish output": toolUse("a", "Bash") + "\n" +
			toolResult("a", strings.Repeat("<a href='x'>&</a>", 200)) + "\n",
		"mixed": toolUse("a", "Read") + "\n" + toolUse("b", "Edit") + "\n" +
			toolResult("a", strings.Repeat("z", 5000)) + "\n" +
			toolResult("b", strings.Repeat("w", 5000)) + "\n" +
			"garbage line\n",
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			out, stats := runTrim(t, input, defaultOpts(500))
			if len(out) > len(input) {
				t.Errorf("output %d bytes > input %d bytes", len(out), len(input))
			}
			if stats.NewBytes > stats.OriginalBytes {
				t.Errorf("NewBytes %d > OriginalBytes %d", stats.NewBytes, stats.OriginalBytes)
			}
		})
	}
}

func TestTrim_RetainedLengthBounded(t *testing.T) {
	const threshold = 100
	var b strings.Builder
	for i, n := range []int{50, 100, 101, 400, 3000} {
		id := fmt.Sprintf("t%d", i)
		b.WriteString(toolUse(id, "Grep") + "\n")
		b.WriteString(toolResult(id, strings.Repeat("g", n)) + "\n")
	}
	out, _ := runTrim(t, b.String(), defaultOpts(threshold))

	for lineNo, line := range strings.Split(strings.TrimSuffix(out, "\n"), "\n") {
		if gjson.Get(line, "type").String() != "user" {
			continue
		}
		content := gjson.Get(line, "message.content.0.content").String()
		limit := threshold + utf8.RuneCountInString(transcript.Notice(100000, lineNo+1, "/tmp/parent.jsonl"))
		if n := utf8.RuneCountInString(content); n > limit {
			t.Errorf("line %d keeps %d chars, limit %d", lineNo+1, n, limit)
		}
	}
}

func TestTrim_Idempotent(t *testing.T) {
	input := toolUse("a", "Read") + "\n" + toolResult("a", strings.Repeat("r", 4000)) + "\n"
	opts := defaultOpts(500)

	first, stats := runTrim(t, input, opts)
	if stats.Trimmed != 1 {
		t.Fatalf("first Trimmed = %d, want 1", stats.Trimmed)
	}
	second, stats := runTrim(t, first, opts)
	if stats.Trimmed != 0 {
		t.Errorf("second Trimmed = %d, want 0", stats.Trimmed)
	}
	if second != first {
		t.Error("second trim changed the transcript")
	}

	opts.TargetTools = []string{"Bash"}
	third, _ := runTrim(t, first, opts)
	if third != first {
		t.Error("trim with Read excluded changed the transcript")
	}
}

func TestTrim_NonTargetToolUntouched(t *testing.T) {
	input := toolUse("a", "Edit") + "\n" + toolResult("a", strings.Repeat("e", 4000)) + "\n"
	out, stats := runTrim(t, input, defaultOpts(500))
	if stats.Trimmed != 0 || out != input {
		t.Errorf("Trimmed = %d, output changed = %v", stats.Trimmed, out != input)
	}
}

func TestTrim_MalformedPassThrough(t *testing.T) {
	broken := `{"type":"user","message":{"content":[{"type":"tool_result"`
	input := toolUse("a", "Read") + "\n" +
		broken + "\n" +
		"\n" +
		toolResult("a", strings.Repeat("m", 2000)) + "\n" +
		"trailing garbage without newline"

	out, stats := runTrim(t, input, defaultOpts(500))
	if stats.Trimmed != 1 {
		t.Errorf("Trimmed = %d, want 1", stats.Trimmed)
	}
	if !strings.Contains(out, "\n"+broken+"\n\n") {
		t.Error("malformed line not copied verbatim")
	}
	if !strings.HasSuffix(out, "\ntrailing garbage without newline") {
		t.Error("unterminated last line not preserved")
	}
	if !strings.Contains(out, "line 4 of /tmp/parent.jsonl") {
		t.Error("notice does not cite the source line number")
	}
	if stats.Malformed != 2 {
		t.Errorf("Malformed = %d, want 2", stats.Malformed)
	}
	if first := stats.FirstMalformed; first == nil || first.Line != 2 {
		t.Errorf("FirstMalformed = %v, want line 2", first)
	}
}

func TestTrim_QuotedMarkerStillTrimmed(t *testing.T) {
	// Reading source that mentions the marker must not exempt the result.
	content := "const TruncationMarker = \"" + transcript.TruncationMarker + "\"\n" + strings.Repeat("s", 3000)
	input := toolUse("a", "Read") + "\n" + toolResult("a", content) + "\n"

	out, stats := runTrim(t, input, defaultOpts(500))
	if stats.Trimmed != 1 {
		t.Fatalf("Trimmed = %d, want 1", stats.Trimmed)
	}
	again, stats := runTrim(t, out, defaultOpts(500))
	if stats.Trimmed != 0 || again != out {
		t.Errorf("second trim truncated %d results", stats.Trimmed)
	}
}

func TestTrim_TextBlockArray(t *testing.T) {
	long := strings.Repeat("é", 1500)
	result := fmt.Sprintf(`{"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"a","content":[{"type":"text","text":%q},{"type":"image","source":{"type":"base64","data":"AAAA"}}]}]}}`, long)
	input := toolUse("a", "WebFetch") + "\n" + result + "\n"

	out, stats := runTrim(t, input, defaultOpts(500))
	if stats.Trimmed != 1 {
		t.Fatalf("Trimmed = %d, want 1", stats.Trimmed)
	}
	line := strings.Split(out, "\n")[1]
	blocks := gjson.Get(line, "message.content.0.content")
	if n := len(blocks.Array()); n != 2 {
		t.Fatalf("got %d blocks, want 2", n)
	}
	text := blocks.Get("0.text").String()
	if !strings.HasPrefix(text, strings.Repeat("é", 500)+"\n\n"+transcript.TruncationMarker) {
		t.Errorf("text block not truncated at 500 runes: %.40q", text)
	}
	if blocks.Get("1.type").String() != "image" || blocks.Get("1.source.data").String() != "AAAA" {
		t.Error("non-text block not preserved")
	}
}

func TestTrim_PreservesUnknownFields(t *testing.T) {
	result := fmt.Sprintf(`{"zeta":1,"type":"user","message":{"role":"user","content":[{"type":"tool_result","tool_use_id":"a","content":%q,"is_error":false}]},"alpha":{"nested":[1,2]}}`,
		strings.Repeat("k", 3000))
	input := toolUse("a", "Read") + "\n" + result + "\n"

	out, _ := runTrim(t, input, defaultOpts(500))
	line := strings.Split(out, "\n")[1]
	if !strings.HasPrefix(line, `{"zeta":1,"type":"user",`) || !strings.HasSuffix(line, `"alpha":{"nested":[1,2]}}`) {
		t.Errorf("field order or unknown fields lost: %.80s", line)
	}
	if !gjson.Get(line, "message.content.0.is_error").Exists() {
		t.Error("is_error dropped")
	}
}

func TestTrim_InvalidThreshold(t *testing.T) {
	var out bytes.Buffer
	if _, err := transcript.Trim(strings.NewReader(""), &out, transcript.Options{}); err == nil {
		t.Error("expected error for zero threshold")
	}
}

func TestTrimFile_NotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := transcript.TrimFile(filepath.Join(dir, "missing.jsonl"), filepath.Join(dir, "out.jsonl"), defaultOpts(500))
	var nf *protocol.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.jsonl")); !os.IsNotExist(statErr) {
		t.Error("output file created for missing input")
	}
}

func TestTrimFile_CitesAbsoluteSource(t *testing.T) {
	in := writeTranscript(t, toolUse("a", "Read"), toolResult("a", strings.Repeat("q", 900)))
	out := filepath.Join(t.TempDir(), "trimmed.jsonl")

	opts := defaultOpts(100)
	opts.SourcePath = ""
	stats, err := transcript.TrimFile(in, out, opts)
	if err != nil {
		t.Fatalf("TrimFile: %v", err)
	}
	if stats.Trimmed != 1 {
		t.Fatalf("Trimmed = %d, want 1", stats.Trimmed)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "line 2 of "+in+"]") {
		t.Error("notice does not cite the absolute input path")
	}
	if stats.SavedPercent() <= 0 {
		t.Errorf("SavedPercent = %f", stats.SavedPercent())
	}
}
