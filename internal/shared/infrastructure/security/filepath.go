// Package security validates operator-supplied paths.
package security

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// dangerousChars are shell metacharacters never expected in a database path.
var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "\n", "\r"}

// ValidateFilePath cleans path, makes it absolute and resolves symlinks when
// the file exists. Paths with shell metacharacters are rejected.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("file path cannot be empty")
	}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return "", errors.Newf("file path contains forbidden character %q: %s", char, path)
		}
	}

	cleanPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", errors.Wrap(err, "resolve absolute path")
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cleanPath, nil
		}
		return "", errors.Wrap(err, "resolve file path")
	}
	return resolved, nil
}

// SplitDSN separates a SQLite file path from its query string and validates
// the path part. The query is returned without the leading '?'.
func SplitDSN(dsn string) (path, query string, err error) {
	path, query, _ = strings.Cut(dsn, "?")
	path, err = ValidateFilePath(path)
	return path, query, err
}
