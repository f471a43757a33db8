package cli

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"github.com/goatkit/prodmanager/internal/plugin"
)

//go:embed templates/*
var templateFS embed.FS

var (
	initRuntime string
	initDir     string
	initAuthor  string
)

var pluginInitCmd = &cobra.Command{
	Use:   "init <SystemName>",
	Short: "Create a new extension from a template",
	Long: `Create a new extension skeleton in <dir>/<SystemName>/.

The factory runtime writes a Go package that registers itself with
pkg/plugin.Register and must be imported by the host binary. The so
runtime writes a main package built with -buildmode=plugin into
<SystemName>.so.`,
	Args: cobra.ExactArgs(1),
	// Scaffolding needs no configuration.
	PersistentPreRunE: noConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := scaffold(args[0], initRuntime, initDir, initAuthor)
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", f)
		}
		return nil
	},
}

func init() {
	pluginInitCmd.Flags().StringVar(&initRuntime, "runtime", "factory", "extension runtime: factory or so")
	pluginInitCmd.Flags().StringVar(&initDir, "dir", ".", "parent directory")
	pluginInitCmd.Flags().StringVar(&initAuthor, "author", "", "author written to the manifest")
	pluginCmd.AddCommand(pluginInitCmd)
}

type scaffoldData struct {
	SystemName string
	Package    string
	Title      string
	Author     string
}

var scaffoldFiles = map[string][][2]string{
	"factory": {
		{"templates/manifest.yaml.tmpl", "{{.SystemName}}.yaml"},
		{"templates/factory.go.tmpl", "extension.go"},
		{"templates/readme_factory.md.tmpl", "README.md"},
	},
	"so": {
		{"templates/so_main.go.tmpl", "main.go"},
		{"templates/so_build.sh.tmpl", "build.sh"},
		{"templates/readme_so.md.tmpl", "README.md"},
	},
}

// scaffold writes the skeleton of a new extension and returns the created
// paths. An existing target directory is an error.
func scaffold(systemName, runtime, parent, author string) ([]string, error) {
	if !plugin.ValidSystemName(systemName) {
		return nil, fmt.Errorf("invalid system name %q: use letters, digits and underscores", systemName)
	}
	files, ok := scaffoldFiles[runtime]
	if !ok {
		return nil, fmt.Errorf("unknown runtime %q (use factory or so)", runtime)
	}

	dir := filepath.Join(parent, systemName)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}

	data := scaffoldData{
		SystemName: systemName,
		Package:    strings.ToLower(systemName),
		Title:      toTitle(systemName),
		Author:     author,
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		name := strings.ReplaceAll(f[1], "{{.SystemName}}", systemName)
		path := filepath.Join(dir, name)
		if err := writeTemplate(path, f[0], data); err != nil {
			return created, err
		}
		if strings.HasSuffix(name, ".sh") {
			if err := os.Chmod(path, 0o755); err != nil {
				return created, err
			}
		}
		created = append(created, path)
	}
	return created, nil
}

func writeTemplate(path, tmplPath string, data any) error {
	content, err := templateFS.ReadFile(tmplPath)
	if err != nil {
		return fmt.Errorf("read template %s: %w", tmplPath, err)
	}

	tmpl, err := template.New(filepath.Base(tmplPath)).Parse(string(content))
	if err != nil {
		return fmt.Errorf("parse template %s: %w", tmplPath, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("render %s: %w", tmplPath, err)
	}
	return nil
}

// toTitle splits a system name into words for the display name:
// "ShopSync" and "shop_sync" become "Shop Sync".
func toTitle(s string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToUpper(string(cur[:1]))+string(cur[1:]))
			cur = cur[:0]
		}
	}
	for i, r := range s {
		switch {
		case r == '_':
			flush()
		case i > 0 && r >= 'A' && r <= 'Z' && len(cur) > 0 && !(cur[len(cur)-1] >= 'A' && cur[len(cur)-1] <= 'Z'):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return strings.Join(words, " ")
}
