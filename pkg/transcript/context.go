package transcript

import (
	"bytes"
	"io"
	"os"

	"github.com/tidwall/gjson"
)

// reverseChunkSize is how much of the file is read per step when scanning
// from the end.
const reverseChunkSize = 64 * 1024

// PercentageFile returns the context utilisation recorded in the transcript
// at path. ok is false if the file is missing or unreadable or carries no
// context metadata.
func PercentageFile(path string) (pct int, ok bool) {
	f, err := os.Open(path) //nolint:gosec // transcript path comes from the locator or the hook payload
	if err != nil {
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, false
	}
	return Percentage(f, info.Size())
}

// Percentage scans records from the end of r and returns the percentage from
// the most recent record that carries both contextTokens and a positive
// maxContextTokens, floored and clamped to [0,100].
func Percentage(r io.ReaderAt, size int64) (pct int, ok bool) {
	err := scanLinesReverse(r, size, func(line []byte) bool {
		p, found := contextPercent(line)
		if found {
			pct, ok = p, true
			return false
		}
		return true
	})
	if err != nil {
		return 0, false
	}
	return pct, ok
}

// contextPercent extracts the percentage from a single record.
func contextPercent(line []byte) (int, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return 0, false
	}
	res := gjson.GetManyBytes(line, "contextTokens", "maxContextTokens")
	used, capacity := res[0], res[1]
	if used.Type != gjson.Number || capacity.Type != gjson.Number {
		return 0, false
	}
	limit := capacity.Int()
	if limit <= 0 {
		return 0, false
	}
	p := used.Int() * 100 / limit
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return int(p), true
}

// scanLinesReverse calls fn for every non-empty line of r, last line first,
// until fn returns false. Memory use is bounded by the chunk size plus the
// longest line.
func scanLinesReverse(r io.ReaderAt, size int64, fn func(line []byte) bool) error {
	var carry []byte
	pos := size
	for pos > 0 {
		n := int64(reverseChunkSize)
		if pos < n {
			n = pos
		}
		pos -= n

		buf := make([]byte, n, n+int64(len(carry)))
		if _, err := r.ReadAt(buf, pos); err != nil && err != io.EOF {
			return err
		}
		buf = append(buf, carry...)

		for {
			i := bytes.LastIndexByte(buf, '\n')
			if i < 0 {
				break
			}
			if line := buf[i+1:]; len(line) > 0 && !fn(line) {
				return nil
			}
			buf = buf[:i]
		}
		carry = buf
	}
	if len(carry) > 0 {
		fn(carry)
	}
	return nil
}
