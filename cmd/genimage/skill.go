package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yshirai/genimage/internal/skill"
)

var (
	flagSkillDir   string
	flagSkillForce bool
)

func newSkillCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Manage the agent skill file",
		Long: `skill installs a SKILL.md describing this CLI into the agent skills
directory, so coding agents discover how to drive genimage.`,
	}
	cmd.PersistentFlags().StringVar(&flagSkillDir, "dir", "", "skill directory (default: ~/.claude/skills/genimage)")

	cmd.AddCommand(
		newSkillInstallCmd(app),
		newSkillStatusCmd(app),
		newSkillUninstallCmd(app),
	)
	return cmd
}

func newInstaller(app *App) *skill.Installer {
	i := skill.NewInstaller(app.Out, app.In)
	i.Dir = flagSkillDir
	i.Force = flagSkillForce
	return i
}

func newSkillInstallCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the skill file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newInstaller(app).Install()
		},
	}
	cmd.Flags().BoolVar(&flagSkillForce, "force", false, "overwrite without confirmation")
	return cmd
}

func newSkillStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the skill file is installed and current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSkillStatus(cmd, args, app)
		},
	}
}

func runSkillStatus(_ *cobra.Command, _ []string, app *App) error {
	st, err := newInstaller(app).Status()
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Out, "State: %s\n", st.State)
	fmt.Fprintf(app.Out, "Path:  %s\n", st.Path)

	if bundled, err := skill.ParseFrontmatter(skill.Content()); err == nil {
		fmt.Fprintf(app.Out, "Bundled version:   %s\n", bundled.Version)
	}
	if st.Frontmatter != nil {
		fmt.Fprintf(app.Out, "Installed version: %s\n", st.Frontmatter.Version)
	}
	if st.State == skill.StateOutOfDate {
		fmt.Fprintln(app.Out, "Run 'genimage skill install' to update.")
	}
	return nil
}

func newSkillUninstallCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the installed skill file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return newInstaller(app).Uninstall()
		},
	}
	cmd.Flags().BoolVar(&flagSkillForce, "force", false, "remove without confirmation")
	return cmd
}
