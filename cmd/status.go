package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/geotargets-cli/internal/geoerr"
	"github.com/sells-group/geotargets-cli/internal/updater"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the local table and when it was last updated",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runStatus(cmd.OutOrStdout(), cfg.Table.Dir, cfg.Table.Filename); err != nil {
			return &commandError{prefix: "Status failed", err: err}
		}
		return nil
	},
}

// runStatus reports the table size and the marker timestamp.
func runStatus(w io.Writer, dir, filename string) error {
	path := filepath.Join(dir, filename)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(w, "Table:        %s (missing)\n", path) //nolint:errcheck
	case err != nil:
		return geoerr.IO(geoerr.ReasonOpenFailed, eris.Wrapf(err, "status: stat %s", path))
	default:
		fmt.Fprintf(w, "Table:        %s (%d bytes)\n", path, info.Size()) //nolint:errcheck
	}

	marker, err := os.ReadFile(filepath.Join(dir, updater.MarkerFilename))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintln(w, "Last update:  never") //nolint:errcheck
	case err != nil:
		return geoerr.IO(geoerr.ReasonReadFailed, eris.Wrap(err, "status: read marker"))
	default:
		fmt.Fprintf(w, "Last update:  %s\n", strings.TrimSpace(string(marker))) //nolint:errcheck
	}
	return nil
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
