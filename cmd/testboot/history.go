package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mmrzaf/testboot/internal/domain"
	"github.com/mmrzaf/testboot/internal/infra/repos/sessions"
	"github.com/mmrzaf/testboot/internal/timeutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past bootstrap sessions",
	}

	var (
		limit  int
		status string
		since  string
		format string
	)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if status != "" && !domain.IsValidSessionStatus(status) {
				return fmt.Errorf("unknown status: %s", status)
			}
			cutoff, err := timeutil.ParseSince(since, time.Now().UTC())
			if err != nil {
				return err
			}

			repo, err := requireHistory()
			if err != nil {
				return err
			}
			defer repo.Close()

			list, err := repo.List(domain.SessionFilter{Limit: limit, Status: status, Since: cutoff})
			if err != nil {
				return err
			}
			return writeSessions(cmd.OutOrStdout(), list, format)
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Limit results")
	listCmd.Flags().StringVar(&status, "status", "", "Filter by status (running|passed|failed|build_failed|error)")
	listCmd.Flags().StringVar(&since, "since", "", "Only sessions started after this (RFC3339, YYYY-MM-DD, or lookback like 7d)")
	listCmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")

	showCmd := &cobra.Command{
		Use:   "show <session_id>",
		Short: "Show session details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := requireHistory()
			if err != nil {
				return err
			}
			defer repo.Close()

			session, err := repo.Get(args[0])
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(session)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func requireHistory() (sessions.Repository, error) {
	e, err := setup()
	if err != nil {
		return nil, err
	}
	dsn := e.cfg.HistoryDBPath(e.root)
	if dsn == "" {
		return nil, errors.New("session history is disabled")
	}
	return sessions.Open(dsn)
}

func writeSessions(w io.Writer, list []*domain.Session, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	case "table", "":
	default:
		return fmt.Errorf("unknown format: %s", format)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tEXIT\tBUILD\tSTARTED\tDURATION")
	for _, s := range list {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		build := "-"
		if s.BuildExitCode != nil {
			build = strconv.Itoa(*s.BuildExitCode)
		}
		duration := "-"
		if s.CompletedAt != nil {
			duration = s.CompletedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			id, s.Status, s.ExitCode, build, s.StartedAt.Format("2006-01-02 15:04"), duration)
	}
	return tw.Flush()
}

// printData aligns key = value pairs on the widest key.
func printData(cmd *cobra.Command, data [][2]string) {
	width := 0
	for _, kv := range data {
		if len(kv[0]) > width {
			width = len(kv[0])
		}
	}
	for _, kv := range data {
		fmt.Fprintf(cmd.OutOrStdout(), "%-*s = %s\n", width, kv[0], kv[1])
	}
}

func joinArgv(argv []string) string {
	return strings.Join(argv, " ")
}
