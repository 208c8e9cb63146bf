// sessions.go implements the commands that read and remove stored sessions:
// sessions, show, delete, export and clean.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/hivecouncil/hivecouncil/internal/config"
	"github.com/hivecouncil/hivecouncil/internal/log"
	"github.com/hivecouncil/hivecouncil/internal/session"
	"github.com/hivecouncil/hivecouncil/internal/tui"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show a session and its responses",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its responses",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session transcript as JSON",
	Long: `Export a session, its responses and total cost as a JSON transcript.
With --zstd the transcript is compressed.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove old sessions",
	Long: `Remove old sessions and their responses.

By default, removes sessions not updated within storage.max_age_days (default 30).
Use --keep to keep only the N most recent sessions instead.
Use --dry-run to preview what would be removed. Running sessions are never removed.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

var (
	limitFlag  int
	jsonFlag   bool
	outputFlag string
	zstdFlag   bool
	keepFlag   int
	olderFlag  int
	dryRunFlag bool
)

func init() {
	sessionsCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum sessions to list")
	sessionsCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of a table")
	showCmd.Flags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of text")

	exportCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&zstdFlag, "zstd", false, "Compress the transcript with zstd")

	cleanCmd.Flags().IntVar(&keepFlag, "keep", 0, "Keep only the last N sessions (0 = use age-based cleanup)")
	cleanCmd.Flags().IntVar(&olderFlag, "older-than", 0, "Remove sessions older than N days (overrides storage.max_age_days)")
	cleanCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Preview what would be removed without deleting")
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	sessions, err := store.ListSessions(cmd.Context(), limitFlag)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return writeJSON(out, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions yet; start one with: hivecouncil run")
		return nil
	}
	fmt.Fprintln(out, renderSessions(sessions))
	return nil
}

func renderSessions(sessions []session.Summary) string {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			tui.StatusStyle(string(s.Status)).Render(string(s.Status)),
			fmt.Sprintf("%d/%d", s.CurrentIteration, s.TotalIterations),
			fmt.Sprintf("%d", s.Responses),
			fmt.Sprintf("$%.4f", s.TotalCost),
			s.UpdatedAt.Local().Format(time.DateTime),
			oneLine(s.Prompt, 48),
		})
	}
	return renderTable([]string{"ID", "STATUS", "ITER", "RESP", "COST", "UPDATED", "PROMPT"}, rows)
}

// renderTable draws a borderless table in the CLI styles.
func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tui.HeaderStyle
			}
			return tui.CellStyle
		}).
		Render()
}

// showOutput is the --json form of show: the transcript plus the member
// failures the journal recorded for the session.
type showOutput struct {
	*session.Transcript
	Failures []log.LogEvent `json:"failures"`
}

func runShow(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := session.NewStore(cfg.DatabasePath(root))
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() { _ = store.Close() }()

	t, err := store.Transcript(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("session %s not found", args[0])
	}
	failures, err := journalFailures(root, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonFlag {
		return writeJSON(out, showOutput{Transcript: t, Failures: failures})
	}
	printTranscript(out, t)
	printFailures(out, failures)
	return nil
}

// journalFailures returns the member and session failures recorded in the
// project journal for sessionID. A missing journal yields none.
func journalFailures(root, sessionID string) ([]log.LogEvent, error) {
	journal, err := log.NewLogger(config.Dir(root))
	if err != nil {
		return nil, err
	}
	events, err := journal.ReadSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}
	failures := []log.LogEvent{}
	for _, e := range events {
		if e.Event == log.EventMemberFailed || e.Event == log.EventSessionFailed {
			failures = append(failures, e)
		}
	}
	return failures, nil
}

func printFailures(out io.Writer, failures []log.LogEvent) {
	if len(failures) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s\n", tui.HeaderStyle.Render("Failures"))
	for _, e := range failures {
		who := e.MemberID
		if who == "" {
			who = "session"
		}
		if e.Provider != "" {
			who = fmt.Sprintf("%s (%s/%s)", who, e.Provider, e.Model)
		}
		kind := ""
		if e.ErrorKind != "" {
			kind = " [" + e.ErrorKind + "]"
		}
		fmt.Fprintf(out, "%s %s%s: %s\n",
			tui.DimStyle.Render(fmt.Sprintf("iteration %d", e.Iteration)),
			tui.ErrorStyle.Render(who), kind, oneLine(e.Error, 200))
	}
}

// printTranscript writes a readable view of a session, grouped by iteration.
func printTranscript(out io.Writer, t *session.Transcript) {
	s := t.Session
	roles := make(map[string]string, len(s.Members))
	for _, m := range s.Members {
		roles[m.ID] = m.DisplayName()
	}

	fmt.Fprintln(out, tui.TitleStyle.Render("Session "+s.ID))
	fmt.Fprintf(out, "Status:     %s\n", tui.StatusStyle(string(s.Status)).Render(string(s.Status)))
	fmt.Fprintf(out, "Iteration:  %d/%d\n", s.CurrentIteration, s.TotalIterations)
	fmt.Fprintf(out, "Template:   %s (preset %s)\n", s.MergeTemplate, s.Preset)
	fmt.Fprintf(out, "Cost:       $%.4f\n", t.TotalCost)
	fmt.Fprintf(out, "Prompt:     %s\n", s.Prompt)

	iteration := 0
	for _, r := range t.Responses {
		if r.Iteration != iteration {
			iteration = r.Iteration
			fmt.Fprintf(out, "\n%s\n", tui.HeaderStyle.Render(fmt.Sprintf("Iteration %d", iteration)))
		}
		who := roles[r.MemberID]
		if who == "" {
			who = r.MemberID
		}
		label := fmt.Sprintf("%s (%s/%s)", who, r.Provider, r.Model)
		if r.Role == session.RoleChair {
			label = tui.SuccessStyle.Render("merge by " + label)
		}
		fmt.Fprintf(out, "\n%s %s\n", label, tui.DimStyle.Render(fmt.Sprintf("%d tokens, $%.6f", r.OutputTokens, r.EstimatedCost)))
		fmt.Fprintln(out, r.Content)
	}
}

func runDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	sess, err := store.GetSession(ctx, args[0])
	if err != nil {
		return err
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", args[0])
	}
	if sess.Status == session.StatusRunning {
		return fmt.Errorf("session %s is running", args[0])
	}

	if _, err := store.DeleteSession(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %s\n", args[0])
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	t, err := store.Transcript(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("session %s not found", args[0])
	}

	if outputFlag == "" {
		return session.WriteTranscript(cmd.OutOrStdout(), t, zstdFlag)
	}

	f, err := os.Create(outputFlag)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	if err := session.WriteTranscript(f, t, zstdFlag); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing export file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported session %s to %s\n", args[0], outputFlag)
	return nil
}

func runClean(cmd *cobra.Command, args []string) error {
	root, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := session.NewStore(cfg.DatabasePath(root))
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := cmd.Context()
	var pruned []string
	if keepFlag > 0 {
		pruned, err = store.PruneKeepRecent(ctx, keepFlag, dryRunFlag)
	} else {
		maxAge := olderFlag
		if maxAge <= 0 {
			maxAge = cfg.Storage.MaxAgeDays
		}
		if maxAge <= 0 {
			maxAge = 30
		}
		pruned, err = store.PruneByAge(ctx, maxAge, dryRunFlag)
	}
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(pruned) == 0 {
		fmt.Fprintln(out, "No sessions to clean up.")
		return nil
	}

	verb := "Removed"
	if dryRunFlag {
		verb = "Would remove"
	}
	for _, id := range pruned {
		fmt.Fprintf(out, "  %s %s\n", verb, id)
	}
	fmt.Fprintf(out, "%s %d session(s).\n", verb, len(pruned))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// oneLine collapses whitespace and cuts s to n runes.
func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
