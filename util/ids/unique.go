package ids

import (
	"regexp"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// NewRunId returns a cluster-unique identifier for one execution of an export job.
func NewRunId() (string, error) {
	node, err := runIdNode()
	if err != nil {
		return "", err
	}
	return node.Generate().String(), nil
}

// JobIdForPrefix derives the stable job identifier for a source prefix. Repeated requests for the
// same folder and size class map to the same job, which is what lets the scheduler refuse duplicates.
func JobIdForPrefix(prefix string, isLarge bool) string {
	suffix := "small"
	if isLarge {
		suffix = "large"
	}
	return nonAlphanumeric.ReplaceAllString(prefix, "_") + "-" + suffix
}
