// Package commands implements the l4lbctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ardenflow/l4lb/internal/admin"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatServices renders a slice of services in the requested format.
func formatServices(services []admin.ServiceView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(services)
	case formatTable:
		return formatServicesTable(services), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatServers renders a slice of servers in the requested format.
func formatServers(servers []admin.ServerView, format string) (string, error) {
	switch format {
	case formatJSON:
		return marshalIndent(servers)
	case formatTable:
		return formatServersTable(servers), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func marshalIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data), nil
}

func formatServicesTable(services []admin.ServiceView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLIC\tDISCIPLINE\tSTATE\tACTIVE\tINACTIVE")

	for _, s := range services {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.Public,
			s.Discipline,
			s.State,
			joinOrDash(s.Active),
			joinOrDash(s.Inactive),
		)
	}

	if err := w.Flush(); err != nil {
		fmt.Fprintln(&buf, "flush error:", err)
	}
	return buf.String()
}

func formatServersTable(servers []admin.ServerView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ENDPOINT\tWEIGHT\tSTATE\tMODE\tSESSIONS")

	for _, s := range servers {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n",
			s.Endpoint,
			s.Weight,
			s.State,
			s.Mode,
			s.Sessions,
		)
	}

	if err := w.Flush(); err != nil {
		fmt.Fprintln(&buf, "flush error:", err)
	}
	return buf.String()
}

func joinOrDash(ss []string) string {
	if len(ss) == 0 {
		return "-"
	}
	return strings.Join(ss, ",")
}
