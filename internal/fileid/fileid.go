// Package fileid derives stable track IDs from file paths.
package fileid

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const prefix = "trk_"

// namespace scopes name-based UUIDs to track paths.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("cratedig:track"))

// TrackID returns a stable ID for the given absolute path. Equivalent paths
// (trailing separators, "." elements) yield the same ID.
func TrackID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	return prefix + uuid.NewSHA1(namespace, []byte(normalized)).String()
}

// IsTrackID reports whether id has the shape produced by TrackID.
func IsTrackID(id string) bool {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
