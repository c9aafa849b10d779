// Package storage keeps rendered report files on local disk or in an
// S3-compatible bucket. Locations returned by Put are store-relative keys.
package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrNotFound = errors.New("artifact not found")

// ReportKey is the storage key of an order's PDF report.
func ReportKey(externalID string) string {
	return fmt.Sprintf("reports/report_%s.pdf", externalID)
}

// cleanKey rejects keys that escape the store root.
func cleanKey(key string) (string, error) {
	k := path.Clean("/" + strings.TrimSpace(key))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return k, nil
}
