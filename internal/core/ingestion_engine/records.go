package ingestion_engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DocumentKey is the index-safe form of a document identity: the first 32 hex
// characters of its SHA-256.
func DocumentKey(documentID string) string {
	sum := sha256.Sum256([]byte(documentID))
	return hex.EncodeToString(sum[:])[:32]
}

// RecordID is a pure function of (document identity, chunk ordinal), so
// re-ingesting a file overwrites its records instead of duplicating them.
func RecordID(documentID string, ordinal int) string {
	return DocumentKey(documentID) + "-" + strconv.Itoa(ordinal)
}

// AssignDocumentIDs derives job-unique document identities from display names.
// The k-th repeat of a name (k >= 2) gets a "#k" suffix.
func AssignDocumentIDs(names []string) []string {
	ids := make([]string, len(names))
	seen := make(map[string]int, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		base := filepath.ToSlash(strings.TrimSpace(name))
		if base == "" {
			base = "document"
		}
		seen[base]++
		id := base
		if seen[base] > 1 {
			id = fmt.Sprintf("%s#%d", base, seen[base])
		}
		// a literal "name#2" upload can collide with a generated suffix
		for used[id] {
			seen[base]++
			id = fmt.Sprintf("%s#%d", base, seen[base])
		}
		used[id] = true
		ids[i] = id
	}
	return ids
}

// DocumentTitle is the file name without directory or extension.
func DocumentTitle(name string) string {
	base := filepath.Base(filepath.ToSlash(name))
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
