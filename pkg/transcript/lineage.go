package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Lineage is the parent link attached to the first record of a derived
// transcript. It is one of *TrimLineage or *ContinueLineage.
type Lineage interface {
	// Key is the record field the lineage is stored under.
	Key() string
	parent() string
}

// Lineage record fields.
const (
	TrimMetadataKey     = "trim_metadata"
	ContinueMetadataKey = "continue_metadata"
)

// TrimLineage links a trimmed transcript to the transcript it was trimmed from.
type TrimLineage struct {
	ParentFile      string   `json:"parent_file"`
	ParentSessionID string   `json:"parent_session_id,omitempty"`
	Timestamp       string   `json:"timestamp"`
	Threshold       int      `json:"threshold"`
	TargetTools     []string `json:"target_tools"`
	Stats           Stats    `json:"stats"`
}

// Key implements Lineage.
func (*TrimLineage) Key() string { return TrimMetadataKey }

func (l *TrimLineage) parent() string { return l.ParentFile }

// ContinueLineage links a continuation transcript to the session it
// continues after a rollover.
type ContinueLineage struct {
	ParentFile      string `json:"parent_file"`
	ParentSessionID string `json:"parent_session_id,omitempty"`
	Timestamp       string `json:"timestamp"`
	WorkerID        int64  `json:"worker_id"`
	SessionNumber   int    `json:"session_number"`
	ContextPercent  int    `json:"context_percent"`
	Continuation    string `json:"continuation"`
}

// Key implements Lineage.
func (*ContinueLineage) Key() string { return ContinueMetadataKey }

func (l *ContinueLineage) parent() string { return l.ParentFile }

// ReadLineage returns the lineage carried by a record, if any.
func ReadLineage(record []byte) (Lineage, bool) {
	if v := gjson.GetBytes(record, TrimMetadataKey); v.IsObject() {
		var l TrimLineage
		if json.Unmarshal([]byte(v.Raw), &l) == nil {
			return &l, true
		}
	}
	if v := gjson.GetBytes(record, ContinueMetadataKey); v.IsObject() {
		var l ContinueLineage
		if json.Unmarshal([]byte(v.Raw), &l) == nil {
			return &l, true
		}
	}
	return nil, false
}

// ReadFileLineage returns the lineage of the transcript at path, read from
// its first record.
func ReadFileLineage(path string) (Lineage, bool) {
	f, err := os.Open(path) //nolint:gosec // caller-resolved transcript path
	if err != nil {
		return nil, false
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		raw, err := r.ReadBytes('\n')
		if line := bytes.TrimSpace(raw); len(line) > 0 && gjson.ValidBytes(line) {
			return ReadLineage(line)
		}
		if err != nil {
			return nil, false
		}
	}
}

// Derive copies a transcript from in to out under a new session identity:
// every record's sessionId is replaced with sessionID, and lineage is
// attached to the first record. Any lineage the first record already
// carried for the same key is replaced; the parent file keeps its own.
// Malformed lines are copied through verbatim.
func Derive(in io.Reader, out io.Writer, sessionID string, lineage Lineage) error {
	meta, err := json.Marshal(lineage)
	if err != nil {
		return fmt.Errorf("encode %s: %w", lineage.Key(), err)
	}

	r := bufio.NewReader(in)
	w := bufio.NewWriter(out)
	attached := false
	for {
		raw, readErr := r.ReadBytes('\n')
		if len(raw) > 0 {
			line := deriveRecord(raw, sessionID, meta, lineage.Key(), &attached)
			if _, err := w.Write(line); err != nil {
				return fmt.Errorf("write derived transcript: %w", err)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("read transcript: %w", readErr)
		}
	}
	return w.Flush()
}

func deriveRecord(raw []byte, sessionID string, meta []byte, key string, attached *bool) []byte {
	body := bytes.TrimRight(raw, "\r\n")
	eol := raw[len(body):]
	if len(body) == 0 || !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return raw
	}

	edited := body
	if gjson.GetBytes(edited, "sessionId").Exists() {
		if next, err := sjson.SetBytes(edited, "sessionId", sessionID); err == nil {
			edited = next
		}
	}
	if !*attached {
		if next, err := sjson.SetRawBytes(edited, key, meta); err == nil {
			edited = next
			*attached = true
		}
	}
	return append(edited, eol...)
}

// DeriveFile runs Derive from inPath into dir/<sessionID>.jsonl and returns
// the new path. The file is written next to its final name and renamed into
// place, so a partial transcript is never visible under the new identity.
func DeriveFile(inPath, dir, sessionID string, lineage Lineage) (string, error) {
	in, err := os.Open(inPath) //nolint:gosec // caller-resolved transcript path
	if err != nil {
		return "", fmt.Errorf("open transcript: %w", err)
	}
	defer in.Close()

	final := filepath.Join(dir, sessionID+".jsonl")
	tmp, err := os.CreateTemp(dir, "."+sessionID+"-*.jsonl.tmp")
	if err != nil {
		return "", fmt.Errorf("create derived transcript: %w", err)
	}
	if err := Derive(in, tmp, sessionID, lineage); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close derived transcript: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move derived transcript: %w", err)
	}
	return final, nil
}

// SeedParams describes the single-record transcript that opens a
// continuation session.
type SeedParams struct {
	SessionID string
	Cwd       string
	Timestamp string
	Prompt    string
	Lineage   *ContinueLineage
}

// WriteSeed writes dir/<SessionID>.jsonl holding one user record with the
// continuation prompt and the continue_metadata lineage. Returns its path.
func WriteSeed(dir string, p SeedParams) (string, error) {
	record := map[string]any{
		"type":       "user",
		"sessionId":  p.SessionID,
		"cwd":        p.Cwd,
		"timestamp":  p.Timestamp,
		"parentUuid": nil,
		"message": map[string]any{
			"role":    "user",
			"content": p.Prompt,
		},
		ContinueMetadataKey: p.Lineage,
	}
	line, err := marshalJSON(record)
	if err != nil {
		return "", fmt.Errorf("encode seed record: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // shared with the Claude projects layout
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(dir, p.SessionID+".jsonl")
	if err := os.WriteFile(path, append(line, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write seed transcript: %w", err)
	}
	return path, nil
}
