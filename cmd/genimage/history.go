package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yshirai/genimage/internal/history"
)

var (
	flagHistoryLimit int
	flagHistoryForce bool
)

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past generations",
	}
	cmd.AddCommand(
		newHistoryListCmd(app),
		newHistoryShowCmd(app),
		newHistoryClearCmd(app),
		newHistoryInfoCmd(app),
	)
	return cmd
}

func newHistoryListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent generations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, args, app)
		},
	}
	cmd.Flags().IntVar(&flagHistoryLimit, "limit", history.DefaultListLimit, "maximum entries to show")
	return cmd
}

func runHistoryList(_ *cobra.Command, _ []string, app *App) error {
	store, err := app.OpenHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(context.Background(), flagHistoryLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(app.Out, "No history yet.")
		return nil
	}

	if isTTY(app.Out) {
		w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tMODEL\tSTYLE\tSUBJECT\tOUTPUT")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(e.ID), e.CreatedAt.Local().Format("2006-01-02 15:04"),
				e.Model, e.Style, truncateSubject(e.Subject, 30), e.OutputPath)
		}
		return w.Flush()
	}

	for _, e := range entries {
		fmt.Fprintf(app.Out, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(e.ID), e.CreatedAt.Local().Format("2006-01-02 15:04"),
			e.Model, e.Style, truncateSubject(e.Subject, 30), e.OutputPath)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncateSubject(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func newHistoryShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one generation in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryShow(cmd, args, app)
		},
	}
}

func runHistoryShow(_ *cobra.Command, args []string, app *App) error {
	store, err := app.OpenHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	e, err := store.Get(context.Background(), args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "ID:          %s\n", e.ID)
	fmt.Fprintf(app.Out, "Created:     %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(app.Out, "Provider:    %s\n", e.Provider)
	fmt.Fprintf(app.Out, "Model:       %s\n", e.Model)
	if e.Style != "" {
		fmt.Fprintf(app.Out, "Style:       %s\n", e.Style)
	}
	if e.Subject != "" {
		fmt.Fprintf(app.Out, "Subject:     %s\n", e.Subject)
	}
	fmt.Fprintf(app.Out, "Resolution:  %s\n", e.Resolution)
	fmt.Fprintf(app.Out, "Aspect:      %s\n", e.AspectRatio)
	fmt.Fprintf(app.Out, "Output:      %s\n", e.OutputPath)
	fmt.Fprintf(app.Out, "Size:        %s\n", humanize.Bytes(uint64(e.Bytes)))
	fmt.Fprintf(app.Out, "Duration:    %s\n", e.Duration)
	fmt.Fprintf(app.Out, "Prompt:\n%s\n", e.Prompt)
	return nil
}

func newHistoryClearCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all history entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryClear(cmd, args, app)
		},
	}
	cmd.Flags().BoolVar(&flagHistoryForce, "force", false, "skip the confirmation prompt")
	return cmd
}

func runHistoryClear(_ *cobra.Command, _ []string, app *App) error {
	if !flagHistoryForce && app.IsTerminal(app.In) {
		fmt.Fprint(app.Out, "Delete all history entries? [y/N]: ")
		scanner := bufio.NewScanner(app.In)
		if !scanner.Scan() {
			return fmt.Errorf("aborted")
		}
		answer := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if answer != "y" && answer != "yes" {
			fmt.Fprintln(app.Out, "Aborted.")
			return nil
		}
	}

	store, err := app.OpenHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Clear(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Out, "Removed %d entries\n", n)
	return nil
}

func newHistoryInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show history database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryInfo(cmd, args, app)
		},
	}
}

func runHistoryInfo(_ *cobra.Command, _ []string, app *App) error {
	store, err := app.OpenHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Database:     %s\n", store.Path())
	if info, err := os.Stat(store.Path()); err == nil {
		fmt.Fprintf(app.Out, "File size:    %s\n", humanize.Bytes(uint64(info.Size())))
	}
	fmt.Fprintf(app.Out, "Entries:      %d\n", stats.Count)
	fmt.Fprintf(app.Out, "Images:       %s\n", humanize.Bytes(uint64(stats.TotalBytes)))
	if stats.Count > 0 {
		fmt.Fprintf(app.Out, "First entry:  %s\n", stats.First.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(app.Out, "Last entry:   %s\n", stats.Last.Local().Format("2006-01-02 15:04"))
	}
	return nil
}
