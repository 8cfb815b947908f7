package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/yshirai/genimage/internal/config"
	"github.com/yshirai/genimage/internal/style"
)

var flagStylesFull bool

func newStylesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "styles",
		Short: "List the available styles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStyles(cmd, args, app)
		},
	}
	cmd.Flags().BoolVar(&flagStylesFull, "full", false, "print the full prompt text of each style")
	return cmd
}

func runStyles(_ *cobra.Command, _ []string, app *App) error {
	cfg := config.Load()
	catalog := app.NewCatalog(cfg.StyleDir)

	styles, err := catalog.List()
	if err != nil {
		return err
	}

	if flagStylesFull {
		for i, st := range styles {
			if i > 0 {
				fmt.Fprintln(app.Out)
			}
			fmt.Fprintf(app.Out, "%s (%s)\n%s\n", st.Name, st.Source, st.Prompt)
		}
		return nil
	}

	if isTTY(app.Out) {
		w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSOURCE\tPREVIEW")
		for _, st := range styles {
			fmt.Fprintf(w, "%s\t%s\t%s\n", st.Name, st.Source, style.Preview(st, 60))
		}
		return w.Flush()
	}

	for _, st := range styles {
		fmt.Fprintf(app.Out, "%s\t%s\t%s\n", st.Name, st.Source, style.Preview(st, 60))
	}
	return nil
}

// isTTY reports whether w is an interactive terminal, so tables get
// headers and alignment only when a human is reading them.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
