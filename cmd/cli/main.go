// Command servicectl manages the endpoints tracked by a servicepoller API.
//
//	servicectl add https://example.com/health --name example
//	servicectl list -o yaml
//	servicectl delete <id>
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/servicepoller/internal/domain"
)

const defaultAPIBase = "http://localhost:8080"

var (
	apiBase string
	apiKey  string
	output  string
)

var rootCmd = &cobra.Command{
	Use:          "servicectl",
	Short:        "Manage servicepoller endpoints",
	SilenceUsage: true,
}

var addCmd = &cobra.Command{
	Use:   "add <url>",
	Short: "Register an endpoint to poll",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := strings.TrimSpace(args[0])
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if _, err := url.ParseRequestURI(raw); err != nil {
			return fmt.Errorf("invalid URL %q", args[0])
		}
		name, _ := cmd.Flags().GetString("name")
		id, err := newClient(apiBase, apiKey).add(cmd.Context(), raw, name)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List endpoints and their last status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		eps, err := newClient(apiBase, apiKey).list(cmd.Context())
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), output, eps)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an endpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return newClient(apiBase, apiKey).delete(cmd.Context(), args[0])
	},
}

func init() {
	base := os.Getenv("API_BASE")
	if base == "" {
		base = defaultAPIBase
	}
	rootCmd.PersistentFlags().StringVar(&apiBase, "api", base, "API base URL (env API_BASE)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("API_KEY"), "admin API key (env API_KEY)")
	listCmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	addCmd.Flags().String("name", "", "display name (defaults to \"default\")")

	rootCmd.AddCommand(addCmd, listCmd, deleteCmd)
}

// row is the yaml/json shape printed by list.
type row struct {
	ID     string    `json:"id" yaml:"id"`
	Name   string    `json:"name" yaml:"name"`
	URL    string    `json:"url" yaml:"url"`
	Status string    `json:"status" yaml:"status"`
	Added  time.Time `json:"added" yaml:"added"`
}

func render(w io.Writer, format string, eps []domain.Endpoint) error {
	rows := make([]row, 0, len(eps))
	for _, e := range eps {
		rows = append(rows, row{ID: string(e.ID), Name: e.Name, URL: e.URL, Status: e.Status.String(), Added: e.Added})
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tURL\tSTATUS\tADDED")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.URL, r.Status, r.Added.Format(time.RFC3339))
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
