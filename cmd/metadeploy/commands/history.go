package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"git.home.luguber.info/inful/metadeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/metadeploy/internal/history"
)

// HistoryCmd implements the 'history' command.
type HistoryCmd struct {
	Limit int    `short:"n" help:"Number of deployments to list" default:"20"`
	Job   string `name:"job" help:"Show a single deployment by job reference"`
}

func (h *HistoryCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	if cfg.History.Path == "" {
		return errors.ConfigError("history is disabled").
			WithContext("hint", "set history.path in the configuration").
			Build()
	}
	store, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return listHistory(context.Background(), os.Stdout, store, h.Job, h.Limit)
}

func listHistory(ctx context.Context, w io.Writer, store history.Store, job string, limit int) error {
	var records []history.Record
	if job != "" {
		rec, err := store.Get(ctx, job)
		if err != nil {
			return err
		}
		records = append(records, *rec)
	} else {
		recent, err := store.Recent(ctx, limit)
		if err != nil {
			return err
		}
		records = recent
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "No deployments recorded")
		return nil
	}
	p := newPrinter()
	for _, r := range records {
		fmt.Fprintf(w, "%s  build=%s  job=%s  state=%s  commits=%s..%s",
			r.CreatedAt.UTC().Format(time.RFC3339), r.BuildID, r.JobRef, r.State,
			short(r.PreviousCommit), short(r.CurrentCommit))
		if r.CheckOnly {
			fmt.Fprint(w, "  check-only")
		}
		if r.Coverage > 0 {
			p.Fprintf(w, "  coverage=%.2f%%", r.Coverage)
		}
		if r.RollbackPath != "" {
			fmt.Fprintf(w, "  rollback=%s", r.RollbackPath)
		}
		fmt.Fprintln(w)
	}
	return nil
}
