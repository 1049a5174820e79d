package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lanecount/internal/config"
	"github.com/banshee-data/lanecount/internal/counting"
	"github.com/banshee-data/lanecount/internal/db"
	"github.com/banshee-data/lanecount/internal/report"
)

var errNoDB = errors.New("--db is required")

func (o *rootOptions) openDB() (*db.DB, error) {
	if o.dbPath == "" {
		return nil, errNoDB
	}
	store, err := db.NewDB(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return store, nil
}

func newSessionsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect stored counting sessions",
	}
	cmd.AddCommand(newSessionsListCmd(root))
	cmd.AddCommand(newSessionsShowCmd(root))
	cmd.AddCommand(newSessionsDeleteCmd(root))
	return cmd
}

func newSessionsListCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := root.openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SESSION\tSTATUS\tSTARTED\tCOUNTED\tFRAMES\tSOURCE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					s.ID, s.Status, s.StartedAt.Format(time.RFC3339), s.TotalCounted, s.Frames, s.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to list (0 for all)")
	return cmd
}

type sessionDetail struct {
	*db.Session
	Crossings []counting.CrossingEvent `json:"crossings"`
	Dwell     report.DwellStats        `json:"dwell"`
}

func newSessionsShowCmd(root *rootOptions) *cobra.Command {
	var pngPath, htmlPath string
	cmd := &cobra.Command{
		Use:   "show SESSION",
		Short: "Print a stored session with its crossings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			s, err := store.GetSession(args[0])
			if err != nil {
				return err
			}
			crossings, err := store.Crossings(s.ID)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sessionDetail{Session: s, Crossings: crossings, Dwell: report.ComputeDwellStats(crossings)}); err != nil {
				return fmt.Errorf("failed to encode session: %w", err)
			}

			if pngPath == "" && htmlPath == "" {
				return nil
			}
			if s.Summary == nil {
				return fmt.Errorf("session %s has no stored summary (status %s)", s.ID, s.Status)
			}
			classes, err := storedClasses(s)
			if err != nil {
				return err
			}
			if pngPath != "" {
				if err := report.WritePNG(pngPath, *s.Summary, classes); err != nil {
					return err
				}
			}
			if htmlPath != "" {
				return writeHTMLFile(htmlPath, "Session "+s.ID, *s.Summary, classes, crossings)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&pngPath, "png", "", "write a bar chart of the stored counts")
	cmd.Flags().StringVar(&htmlPath, "html", "", "write an HTML report of the stored session")
	return cmd
}

// storedClasses recovers the reporting classes from the config a session
// was run with.
func storedClasses(s *db.Session) ([]counting.VehicleClass, error) {
	tc := config.EmptyTuningConfig()
	if err := json.Unmarshal([]byte(s.ConfigJSON), tc); err != nil {
		return nil, fmt.Errorf("session %s: bad stored config: %w", s.ID, err)
	}
	return counting.ConfigFromTuning(tc).Classes(), nil
}

func newSessionsDeleteCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete SESSION",
		Short: "Delete a stored session and its crossings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openDB()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteSession(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}
