package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yshirai/genimage/internal/keys"
	"github.com/yshirai/genimage/pkg/models"
)

func newKeysCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage stored API keys",
	}
	cmd.AddCommand(
		newKeysSetCmd(app),
		newKeysListCmd(app),
		newKeysDeleteCmd(app),
		newKeysPathCmd(app),
	)
	return cmd
}

func newKeysSetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "set PROVIDER",
		Short: "Store an API key for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysSet(cmd, args, app)
		},
	}
}

func runKeysSet(_ *cobra.Command, args []string, app *App) error {
	pt, err := models.ParseProvider(args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Enter %s API key: ", pt)
	key, err := readSecret(app)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("no key provided")
	}

	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	if err := store.Set(pt, key); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Stored %s API key (%s)\n", pt, keys.MaskKey(key))
	return nil
}

// readSecret reads a key without echo on a terminal, or a plain line
// otherwise so piped input works.
func readSecret(app *App) (string, error) {
	if f, ok := app.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(app.Out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(app.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func newKeysListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysList(cmd, args, app)
		},
	}
}

func runKeysList(_ *cobra.Command, _ []string, app *App) error {
	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}

	providers, err := store.List()
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		fmt.Fprintln(app.Out, "No keys stored. Run 'genimage keys set PROVIDER' to add one.")
		return nil
	}

	type row struct {
		provider string
		masked   string
	}
	rows := make([]row, 0, len(providers))
	for _, name := range providers {
		pt, err := models.ParseProvider(name)
		if err != nil {
			continue
		}
		key, err := store.Get(pt)
		if err != nil {
			return err
		}
		rows = append(rows, row{provider: name, masked: keys.MaskKey(key)})
	}

	if isTTY(app.Out) {
		w := tabwriter.NewWriter(app.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tKEY")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\n", r.provider, r.masked)
		}
		return w.Flush()
	}

	for _, r := range rows {
		fmt.Fprintf(app.Out, "%s\t%s\n", r.provider, r.masked)
	}
	return nil
}

func newKeysDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete PROVIDER",
		Short: "Delete a stored API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysDelete(cmd, args, app)
		},
	}
}

func runKeysDelete(_ *cobra.Command, args []string, app *App) error {
	pt, err := models.ParseProvider(args[0])
	if err != nil {
		return err
	}

	store, err := app.NewKeyStore()
	if err != nil {
		return err
	}
	if err := store.Delete(pt); err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "Deleted %s API key\n", pt)
	return nil
}

func newKeysPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the key store location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := app.NewKeyStore()
			if err != nil {
				return err
			}
			fmt.Fprintln(app.Out, store.Path())
			return nil
		},
	}
}
