package replica

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/spf13/afero"

	"github.com/sdejongh/replisync/pkg/models"
)

// Verifier checks a downloaded replica before it is installed
type Verifier interface {
	Verify(ctx context.Context, path string) error
}

// NopVerifier accepts every file
type NopVerifier struct{}

// Verify implements Verifier
func (NopVerifier) Verify(context.Context, string) error { return nil }

// SQLiteVerifier runs PRAGMA quick_check against the file, opened read-only.
// It reads the operating system path directly, not through an afero.Fs.
// Opening a WAL-mode database creates -wal and -shm files beside it; they are
// removed once the check is done.
type SQLiteVerifier struct{}

// Verify implements Verifier
func (SQLiteVerifier) Verify(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.NewSyncError(models.KindCorruptContent, "verify", path, err)
	}

	err = quickCheck(ctx, abs)
	// best effort; the caller clears the same files again before installing
	RemoveSidecars(afero.NewOsFs(), abs, DefaultSidecars)
	if err != nil {
		return models.NewSyncError(models.KindCorruptContent, "verify", path, err)
	}
	return nil
}

// quickCheck must close its connection before the caller touches side files
func quickCheck(ctx context.Context, abs string) error {
	uriPath := filepath.ToSlash(abs)
	if !strings.HasPrefix(uriPath, "/") {
		uriPath = "/" + uriPath
	}
	dsn := (&url.URL{Scheme: "file", Path: uriPath, RawQuery: "mode=ro"}).String()
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	var rows []string
	if err := db.SelectContext(ctx, &rows, "PRAGMA quick_check"); err != nil {
		return err
	}
	if len(rows) != 1 || rows[0] != "ok" {
		return fmt.Errorf("quick_check: %s", strings.Join(rows, "; "))
	}
	return nil
}
