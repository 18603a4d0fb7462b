package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// Backup writes a consistent copy of the catalog database to path. The
// file must not already exist.
func (c *Catalog) Backup(ctx context.Context, path string) error {
	if _, err := c.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to back up catalog: %w", err)
	}
	return nil
}

// AttachAdminRoutes mounts the tsweb debug index on mux with a live SQL
// console over the catalog and a download-a-backup action.
func (c *Catalog) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://catalog.db", c.db, &tailsql.DBOptions{
		Label: "Grid catalog",
	})
	debug.Handle("tailsql/", "SQL console over the grid catalog", tsql.NewMux())
	debug.Handle("backup", "Download a backup of the grid catalog", http.HandlerFunc(c.serveBackup))
	return nil
}

func (c *Catalog) serveBackup(w http.ResponseWriter, r *http.Request) {
	name := fmt.Sprintf("catalog-%d.db", c.clock.Now().Unix())
	dir, err := os.MkdirTemp("", "geogrid-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := c.Backup(r.Context(), path); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", name))
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, f); err != nil {
		c.logf("failed to send backup: %v", err)
	}
}
