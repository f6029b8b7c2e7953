package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// VerifyResult is the outcome of checking a log's hash chain. Head is the
// hash of the last line, which the next entry must carry as prev_hash.
type VerifyResult struct {
	Valid     bool   `json:"valid"`
	Lines     int    `json:"lines"`
	Runs      int    `json:"runs"`
	Head      string `json:"head,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorLine int    `json:"error_line,omitempty"`
}

// Verify checks that every entry in the log at path links to the line
// before it, starting from GenesisHash. It stops at the first bad line.
func Verify(path string) VerifyResult {
	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{Error: fmt.Sprintf("open: %v", err)}
	}
	defer f.Close()

	res := VerifyResult{Head: GenesisHash}
	fail := func(format string, args ...any) VerifyResult {
		return VerifyResult{Error: fmt.Sprintf(format, args...), ErrorLine: res.Lines}
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		res.Lines++
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return fail("parse error: %v", err)
		}
		if entry.PrevHash != res.Head {
			if res.Lines == 1 {
				return fail("first entry prev_hash is %q, expected genesis hash", entry.PrevHash)
			}
			return fail("hash mismatch: expected %s, got %s", res.Head, entry.PrevHash)
		}
		if entry.Type == TypeExecution {
			res.Runs++
		}
		res.Head = HashLine(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return VerifyResult{Error: fmt.Sprintf("scan: %v", err)}
	}

	res.Valid = true
	return res
}
