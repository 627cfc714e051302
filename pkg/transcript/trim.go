package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"work/pkg/protocol"
)

// TruncationMarker opens every notice appended to truncated content. Content
// that ends with a notice is never truncated again.
const TruncationMarker = "[truncated by work trim:"

//nolint:gochecknoglobals // compiled once
var (
	noticeSuffix = regexp.MustCompile(`\n\n` + regexp.QuoteMeta(TruncationMarker) +
		` original \d+ chars, line \d+ of [^\n]*\]\z`)
	errInvalidRecord = errors.New("invalid JSON")
)

// Options configures a trim.
type Options struct {
	// Threshold is the number of characters (runes) a tool result may keep.
	Threshold int
	// TargetTools names the tools whose results may be truncated.
	TargetTools []string
	// SourcePath is cited in the truncation notice so the full output can
	// be recovered. TrimFile fills it with the absolute input path.
	SourcePath string
}

// Stats summarises a trim. Byte counts cover every line of the input,
// including lines that were copied through unchanged.
type Stats struct {
	Trimmed       int   `json:"trimmed"`
	OriginalBytes int64 `json:"original_bytes"`
	NewBytes      int64 `json:"new_bytes"`
	Saved         int64 `json:"saved_bytes"`

	// Malformed counts lines copied through because they are not valid JSON.
	Malformed      int                      `json:"malformed_lines"`
	FirstMalformed *protocol.MalformedError `json:"-"`
}

// SavedPercent returns the saved share of the original size.
func (s Stats) SavedPercent() float64 {
	if s.OriginalBytes == 0 {
		return 0
	}
	return float64(s.Saved) * 100 / float64(s.OriginalBytes)
}

// TrimFile trims the transcript at inPath into outPath.
// A missing input file is reported as *protocol.NotFoundError.
func TrimFile(inPath, outPath string, opts Options) (Stats, error) {
	in, err := os.Open(inPath) //nolint:gosec // caller-resolved transcript path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Stats{}, &protocol.NotFoundError{Kind: "transcript", Key: inPath}
		}
		return Stats{}, fmt.Errorf("open transcript: %w", err)
	}
	defer in.Close()

	if opts.SourcePath == "" {
		abs, err := filepath.Abs(inPath)
		if err != nil {
			abs = inPath
		}
		opts.SourcePath = abs
	}

	out, err := os.Create(outPath) //nolint:gosec // output path chosen by the caller
	if err != nil {
		return Stats{}, fmt.Errorf("create trimmed transcript: %w", err)
	}

	stats, err := Trim(in, out, opts)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close trimmed transcript: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(outPath)
		return Stats{}, err
	}
	return stats, nil
}

// Trim copies the transcript from in to out, truncating oversized results of
// the target tools. It needs two passes: the first maps tool invocation ids
// to tool names from assistant records, the second rewrites user records
// whose tool results belong to a target tool.
//
// A result is only replaced when the truncated form is strictly shorter than
// the original, so the output is never larger than the input.
func Trim(in io.ReadSeeker, out io.Writer, opts Options) (Stats, error) {
	if opts.Threshold <= 0 {
		return Stats{}, fmt.Errorf("trim threshold must be positive, got %d", opts.Threshold)
	}

	names, err := toolNames(in)
	if err != nil {
		return Stats{}, err
	}
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return Stats{}, fmt.Errorf("rewind transcript: %w", err)
	}

	targets := make(map[string]bool, len(opts.TargetTools))
	for _, name := range opts.TargetTools {
		targets[name] = true
	}

	var stats Stats
	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)
	lineNo := 0
	for {
		raw, readErr := r.ReadBytes('\n')
		if len(raw) > 0 {
			lineNo++
			stats.OriginalBytes += int64(len(raw))

			rewritten, n, err := trimRecord(raw, lineNo, names, targets, opts)
			if err != nil {
				stats.Malformed++
				if stats.FirstMalformed == nil {
					errors.As(err, &stats.FirstMalformed)
				}
			}
			stats.Trimmed += n
			stats.NewBytes += int64(len(rewritten))
			if _, err := w.Write(rewritten); err != nil {
				return Stats{}, fmt.Errorf("write trimmed transcript: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return Stats{}, fmt.Errorf("read transcript: %w", readErr)
		}
	}
	if err := w.Flush(); err != nil {
		return Stats{}, fmt.Errorf("write trimmed transcript: %w", err)
	}

	stats.Saved = stats.OriginalBytes - stats.NewBytes
	return stats, nil
}

// toolNames runs the first pass: tool_use id -> tool name.
func toolNames(in io.Reader) (map[string]string, error) {
	names := make(map[string]string)
	r := bufio.NewReader(in)
	for {
		raw, err := r.ReadBytes('\n')
		if line := bytes.TrimSpace(raw); len(line) > 0 && gjson.ValidBytes(line) &&
			gjson.GetBytes(line, "type").String() == "assistant" {
			gjson.GetBytes(line, "message.content").ForEach(func(_, item gjson.Result) bool {
				if item.Get("type").String() == "tool_use" {
					if id := item.Get("id").String(); id != "" {
						names[id] = item.Get("name").String()
					}
				}
				return true
			})
		}
		if err == io.EOF {
			return names, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
	}
}

// trimRecord returns the line to write and how many results it truncated.
// raw includes its trailing newline, if any. A line that is not valid JSON is
// returned unchanged with a *protocol.MalformedError.
func trimRecord(raw []byte, lineNo int, names map[string]string, targets map[string]bool, opts Options) ([]byte, int, error) {
	body := bytes.TrimRight(raw, "\r\n")
	eol := raw[len(body):]
	if len(bytes.TrimSpace(body)) == 0 {
		return raw, 0, nil
	}
	if !gjson.ValidBytes(body) {
		return raw, 0, &protocol.MalformedError{Line: lineNo, Err: errInvalidRecord}
	}
	if gjson.GetBytes(body, "type").String() != "user" {
		return raw, 0, nil
	}

	content := gjson.GetBytes(body, "message.content")
	if !content.IsArray() {
		return raw, 0, nil
	}

	edited := body
	trimmed := 0
	for i, item := range content.Array() {
		if item.Get("type").String() != "tool_result" {
			continue
		}
		if !targets[names[item.Get("tool_use_id").String()]] {
			continue
		}
		replacement, ok := truncateResult(item.Get("content"), lineNo, opts)
		if !ok {
			continue
		}
		next, err := sjson.SetRawBytes(edited, "message.content."+strconv.Itoa(i)+".content", replacement)
		if err != nil {
			continue
		}
		edited = next
		trimmed++
	}

	if trimmed == 0 || len(edited) >= len(body) {
		return raw, 0, nil
	}
	return append(edited, eol...), trimmed, nil
}

// truncateResult returns the JSON replacement for a tool_result content value,
// or false if it should be kept as is. Both plain strings and arrays of text
// blocks are handled; non-text blocks in an array are preserved.
func truncateResult(content gjson.Result, lineNo int, opts Options) (json.RawMessage, bool) {
	switch {
	case content.Type == gjson.String:
		text, ok := truncateText(content.String(), lineNo, opts)
		if !ok {
			return nil, false
		}
		out, err := marshalJSON(text)
		if err != nil || len(out) >= len(content.Raw) {
			return nil, false
		}
		return out, true

	case content.IsArray():
		var (
			texts []string
			other []json.RawMessage
		)
		for _, block := range content.Array() {
			if block.Get("type").String() == "text" {
				texts = append(texts, block.Get("text").String())
			} else {
				other = append(other, json.RawMessage(block.Raw))
			}
		}
		if len(texts) == 0 {
			return nil, false
		}
		text, ok := truncateText(strings.Join(texts, "\n"), lineNo, opts)
		if !ok {
			return nil, false
		}
		blocks := make([]any, 0, len(other)+1)
		blocks = append(blocks, map[string]string{"type": "text", "text": text})
		for _, o := range other {
			blocks = append(blocks, o)
		}
		out, err := marshalJSON(blocks)
		if err != nil || len(out) >= len(content.Raw) {
			return nil, false
		}
		return out, true
	}
	return nil, false
}

// truncateText keeps the first Threshold runes of s and appends the notice.
// It refuses when s is short enough, already truncated, or when the result
// would not be shorter.
func truncateText(s string, lineNo int, opts Options) (string, bool) {
	length := utf8.RuneCountInString(s)
	if length <= opts.Threshold || noticeSuffix.MatchString(s) {
		return "", false
	}

	cut, runes := len(s), 0
	for i := range s {
		if runes == opts.Threshold {
			cut = i
			break
		}
		runes++
	}
	out := s[:cut] + Notice(length, lineNo, opts.SourcePath)
	if utf8.RuneCountInString(out) >= length {
		return "", false
	}
	return out, true
}

// Notice is the text appended to truncated content.
func Notice(originalChars, lineNo int, source string) string {
	return fmt.Sprintf("\n\n%s original %d chars, line %d of %s]", TruncationMarker, originalChars, lineNo, source)
}

// marshalJSON encodes v without HTML escaping, so '<' and '>' in tool
// output do not grow into \u003c sequences.
func marshalJSON(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
