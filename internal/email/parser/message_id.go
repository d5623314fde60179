package parser

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MessageID returns the Message-ID header without brackets. Messages that
// lack one get a stable content hash so re-fetches map to the same id.
func MessageID(header string, raw []byte) string {
	if id := strings.Trim(strings.TrimSpace(header), "<>"); id != "" {
		return id
	}
	if id := extractMessageIDHeader(raw); id != "" {
		return id
	}

	sum := sha256.Sum256(raw)
	return "sha256-" + hex.EncodeToString(sum[:16])
}

func extractMessageIDHeader(content []byte) string {
	for _, line := range bytes.Split(content, []byte("\n")) {
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			return "" // end of headers
		}
		if bytes.HasPrefix(bytes.ToLower(line), []byte("message-id:")) {
			id := string(bytes.TrimSpace(line[len("message-id:"):]))
			return strings.Trim(id, "<>")
		}
	}
	return ""
}
