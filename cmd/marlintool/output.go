package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jhol/marlintool/cacheroot"
	"github.com/jhol/marlintool/errors"
	"github.com/jhol/marlintool/snapshot"
)

// Output formats for listing commands.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

type snapshotRow struct {
	Name    string    `json:"name" yaml:"name"`
	ModTime time.Time `json:"modified" yaml:"modified"`
}

type cacheRow struct {
	Kind      string    `json:"kind" yaml:"kind"`
	Name      string    `json:"name" yaml:"name"`
	URL       string    `json:"url,omitempty" yaml:"url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	LastUsed  time.Time `json:"last_used" yaml:"last_used"`
}

func writeSnapshots(w io.Writer, format string, list []snapshot.Info) error {
	rows := make([]snapshotRow, 0, len(list))
	for _, s := range list {
		rows = append(rows, snapshotRow{Name: s.Name, ModTime: s.ModTime})
	}
	if format != formatText {
		return encode(w, format, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r.Name, r.ModTime.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func writeCacheEntries(w io.Writer, format string, entries []cacheroot.Entry) error {
	rows := make([]cacheRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, cacheRow{
			Kind:      string(e.Kind),
			Name:      e.Name,
			URL:       e.URL,
			CreatedAt: e.CreatedAt,
			LastUsed:  e.LastUsed,
		})
	}
	if format != formatText {
		return encode(w, format, rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range rows {
		used := "-"
		if !r.LastUsed.IsZero() {
			used = r.LastUsed.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Kind, r.Name, used, r.URL)
	}
	return tw.Flush()
}

func encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to encode yaml output")
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to encode json output")
		}
		return nil
	}
}
