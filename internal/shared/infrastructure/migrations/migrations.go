// Package migrations applies the embedded schema for the configured driver.
package migrations

import (
	"context"
	"embed"
	"io/fs"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/felixgeelhaar/reservo/internal/shared/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// Run executes every *.up.sql file for conn's driver in lexical order.
// The scripts only use IF NOT EXISTS statements, so running them again is harmless.
func Run(ctx context.Context, conn database.Connection) error {
	dir := conn.Driver().String()

	names, err := upFiles(dir)
	if err != nil {
		return err
	}

	for _, name := range names {
		script, err := files.ReadFile(dir + "/" + name)
		if err != nil {
			return errors.Wrapf(err, "read migration %s", name)
		}
		if _, err := conn.Exec(ctx, string(script)); err != nil {
			return errors.Wrapf(err, "execute migration %s", name)
		}
	}
	return nil
}

// Files lists the migrations that Run would apply for driver.
func Files(driver database.Driver) ([]string, error) {
	return upFiles(driver.String())
}

func upFiles(dir string) ([]string, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read migrations for %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
