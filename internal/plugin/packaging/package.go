package packaging

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PackagePlugin creates a ZIP package from an extension directory. The
// directory's base name is the system name and it must contain the entry
// file <name>.yaml or <name>.so. A YAML manifest is validated first.
//
// With namespaced set every entry carries the <name>/ prefix; otherwise the
// files sit at the archive root.
func PackagePlugin(pluginDir, outputPath string, namespaced bool) error {
	pluginDir = filepath.Clean(pluginDir)
	name := filepath.Base(pluginDir)

	manifestPath := filepath.Join(pluginDir, name+".yaml")
	if data, err := os.ReadFile(manifestPath); err == nil {
		m, err := ValidateManifest(data)
		if err != nil {
			return err
		}
		if m.SystemName != name {
			return fmt.Errorf("%s: system_name %q does not match directory %q", manifestPath, m.SystemName, name)
		}
	} else if _, soErr := os.Stat(filepath.Join(pluginDir, name+".so")); soErr != nil {
		return fmt.Errorf("missing entry file %s.yaml or %s.so in %s", name, name, pluginDir)
	}

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer outFile.Close()

	zipWriter := zip.NewWriter(outFile)

	err = filepath.Walk(pluginDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(pluginDir, path)
		if err != nil {
			return err
		}

		// Skip hidden files
		if strings.HasPrefix(filepath.Base(relPath), ".") {
			return nil
		}

		zipPath := filepath.ToSlash(relPath)
		if namespaced {
			zipPath = name + "/" + zipPath
		}
		return addFileToZip(zipWriter, path, zipPath)
	})
	if err != nil {
		zipWriter.Close()
		return fmt.Errorf("failed to package plugin: %w", err)
	}

	return zipWriter.Close()
}

func addFileToZip(w *zip.Writer, srcPath, zipPath string) error {
	file, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = zipPath
	header.Method = zip.Deflate

	writer, err := w.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
