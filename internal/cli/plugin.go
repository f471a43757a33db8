package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goatkit/prodmanager/internal/plugin/packaging"
)

var (
	packOutput     string
	packNamespaced bool
	installMove    bool
)

var pluginCmd = &cobra.Command{
	Use:     "plugin",
	Aliases: []string{"plugins"},
	Short:   "Manage extensions",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded extensions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, vcfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		installed := make(map[string]bool)
		rows, err := a.installed.List(ctx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			installed[r.SystemName] = true
		}

		exts := a.registry.All(ctx)
		if len(exts) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No extensions found in %s.\n", cfg.Plugins.Dir)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SYSTEM NAME\tNAME\tVERSION\tAUTHOR\tINSTALLED")
		for _, ext := range exts {
			d := ext.Descriptor()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", d.SystemName, d.Name, d.Version, d.Authors, installed[d.SystemName])
		}
		return w.Flush()
	},
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <archive.zip>",
	Short: "Install an extension archive",
	Long: `Install an extension from a ZIP archive named after the extension,
e.g. Shop.zip. The archive is copied to plugins.tmp_dir first; pass --move
to consume the original instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, vcfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		archive := args[0]
		if !installMove {
			archive, err = copyToDir(args[0], cfg.Plugins.TmpDir)
			if archive != "" {
				defer os.RemoveAll(filepath.Dir(archive))
			}
			if err != nil {
				return err
			}
		}

		desc, err := a.manager.Install(ctx, archive)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s %s (%s).\n", desc.SystemName, desc.Version, desc.Name)
		return nil
	},
}

var pluginUninstallCmd = &cobra.Command{
	Use:   "uninstall <system-name>",
	Short: "Uninstall an extension",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, vcfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.Uninstall(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s.\n", args[0])
		return nil
	},
}

var pluginPackCmd = &cobra.Command{
	Use:   "pack <dir>",
	Short: "Build an installable archive from an extension directory",
	Long: `Build an installable archive from an extension directory. The directory
name is the system name and must contain <name>.yaml or <name>.so.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := filepath.Clean(args[0])
		out := packOutput
		if out == "" {
			out = filepath.Base(dir) + ".zip"
		}
		if err := packaging.PackagePlugin(dir, out, packNamespaced); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s.\n", out)
		return nil
	},
}

func init() {
	pluginInstallCmd.Flags().BoolVar(&installMove, "move", false, "consume the archive instead of copying it")
	pluginPackCmd.Flags().StringVarP(&packOutput, "output", "o", "", "archive path (default <name>.zip)")
	pluginPackCmd.Flags().BoolVar(&packNamespaced, "namespaced", false, "put files under <name>/ inside the archive")

	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginInstallCmd)
	pluginCmd.AddCommand(pluginUninstallCmd)
	pluginCmd.AddCommand(pluginPackCmd)
	rootCmd.AddCommand(pluginCmd)
}

// copyToDir copies src into a fresh upload-* directory under dir. The
// returned path is set whenever that directory exists.
func copyToDir(src, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	tmp, err := os.MkdirTemp(dir, "upload-*")
	if err != nil {
		return "", err
	}
	dst := filepath.Join(tmp, filepath.Base(src))
	out, err := os.Create(dst)
	if err != nil {
		return dst, err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return dst, err
	}
	return dst, out.Close()
}
