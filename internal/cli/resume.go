// resume.go implements the "hivecouncil resume" command which continues a
// paused or failed session from its stored responses.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hivecouncil/hivecouncil/internal/council"
	"github.com/hivecouncil/hivecouncil/internal/orchestrator"
	"github.com/hivecouncil/hivecouncil/internal/session"
	"github.com/hivecouncil/hivecouncil/internal/tui"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused or failed session",
	Long: `Resume a session that was interrupted or failed. Responses already
stored for the current iteration are kept; only missing members are called
again before the chair merges.

Attached files are not stored, so pass them again with --file if needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var resumeFiles []string

func init() {
	resumeCmd.Flags().StringSliceVarP(&resumeFiles, "file", "f", nil, "Attach a file again (repeatable)")
}

func runResume(cmd *cobra.Command, args []string) error {
	e, err := openEnv(viewLogOutput())
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := e.store.GetSession(ctx, args[0])
	if err != nil {
		return err
	}
	if err := checkResumable(args[0], sess); err != nil {
		return err
	}

	state, err := orchestrator.ResumeStateFromStore(ctx, e.store, sess)
	if err != nil {
		return err
	}

	var files []council.Attachment
	for _, path := range resumeFiles {
		a, err := readAttachment(path)
		if err != nil {
			return err
		}
		files = append(files, a)
	}

	engine := e.engine()
	run := orchestrator.Attach(sess, files)

	return tui.Watch(ctx, runInfo(run), func(ctx context.Context, emit orchestrator.EmitFunc) error {
		return engine.ResumeSession(ctx, run, state, emit)
	}, cmd.OutOrStdout(), verbose)
}

// checkResumable rejects sessions that are missing, finished, or still owned
// by a live run.
func checkResumable(id string, sess *session.Session) error {
	switch {
	case sess == nil:
		return fmt.Errorf("session %s not found", id)
	case sess.Status == session.StatusCompleted:
		return fmt.Errorf("session %s is already completed", id)
	case sess.Status == session.StatusRunning:
		return fmt.Errorf("session %s is running; stop the process that owns it first", id)
	}
	return nil
}
