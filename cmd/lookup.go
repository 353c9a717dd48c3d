package main

import (
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/geotargets-cli/internal/metrics"
	"github.com/sells-group/geotargets-cli/internal/model"
	"github.com/sells-group/geotargets-cli/internal/table"
)

var (
	lookupFile   string
	lookupFormat string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <criteria_id>",
	Short: "Print the geo target record for a criteria id",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return usageErrorf("Usage: geotargets lookup <criteria_id>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		switch lookupFormat {
		case "json", "yaml", "csv":
		default:
			return usageErrorf("unknown --format %q (want json, yaml or csv)", lookupFormat)
		}

		path := lookupFile
		if path == "" {
			if err := cfg.Validate("lookup"); err != nil {
				return usageErrorf("%s", err.Error())
			}
			path = tablePath()
		}
		if err := runLookup(cmd.OutOrStdout(), table.NewReader(path), args[0], lookupFormat); err != nil {
			return &commandError{prefix: "Lookup failed", err: err}
		}
		return nil
	},
}

// notFound is the payload for an id absent from the table.
type notFound struct {
	Error      string `json:"error" yaml:"error"`
	CriteriaID string `json:"criteria_id" yaml:"criteria_id"`
}

func newNotFound(id string) notFound {
	return notFound{Error: "not_found", CriteriaID: id}
}

// findRecord looks id up and records the outcome.
func findRecord(r *table.Reader, id string) (*model.Record, error) {
	rec, err := r.FindByID(id)
	switch {
	case err != nil:
		metrics.ObserveLookup(metrics.ResultError)
	case rec == nil:
		metrics.ObserveLookup(metrics.ResultNotFound)
	default:
		metrics.ObserveLookup(metrics.ResultFound)
	}
	return rec, err
}

// runLookup writes the record for id to w in format. A missing id is not a
// failure; the not-found payload is written instead.
func runLookup(w io.Writer, r *table.Reader, id, format string) error {
	rec, err := findRecord(r, id)
	if err != nil {
		return err
	}

	var payload any = newNotFound(id)
	if rec != nil {
		payload = rec
	}

	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(payload); err != nil {
			return eris.Wrap(err, "lookup: encode yaml")
		}
		return eris.Wrap(enc.Close(), "lookup: close yaml encoder")
	case "csv":
		if rec == nil {
			break
		}
		out, err := csvutil.Marshal([]model.Record{*rec})
		if err != nil {
			return eris.Wrap(err, "lookup: encode csv")
		}
		_, err = w.Write(out)
		return eris.Wrap(err, "lookup: write csv")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return eris.Wrap(err, "lookup: encode json")
	}
	return nil
}

func tablePath() string {
	return filepath.Join(cfg.Table.Dir, cfg.Table.Filename)
}

func init() {
	lookupCmd.Flags().StringVar(&lookupFile, "file", "", "table file (default from config table.dir/table.filename)")
	lookupCmd.Flags().StringVar(&lookupFormat, "format", "json", "output format: json, yaml or csv")
	rootCmd.AddCommand(lookupCmd)
}
