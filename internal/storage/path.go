package storage

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const exportRoot = "exports"

// BuildTranscriptPath returns the key of a saved conversation, partitioned by
// the UTC day it was exported.
func BuildTranscriptPath(sessionID string, exportedAt time.Time) (string, error) {
	return buildExportPath(sessionID, exportedAt, "transcript", "json")
}

// BuildResultPath returns the key of an exported result set.
func BuildResultPath(sessionID string, exportedAt time.Time) (string, error) {
	return buildExportPath(sessionID, exportedAt, "result", "parquet")
}

func buildExportPath(sessionID string, exportedAt time.Time, kind, ext string) (string, error) {
	if err := validatePathComponent(sessionID, "session id"); err != nil {
		return "", err
	}
	ts := exportedAt.UTC()
	return path.Join(
		exportRoot,
		fmt.Sprintf("date=%04d-%02d-%02d", ts.Year(), ts.Month(), ts.Day()),
		sessionID,
		fmt.Sprintf("%s-%s.%s", kind, ts.Format("20060102T150405.000Z"), ext),
	), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
