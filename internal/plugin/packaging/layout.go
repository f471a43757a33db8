// Package packaging provides ZIP-based extension packaging and extraction.
package packaging

import (
	"archive/zip"
	"strings"
)

// Layout describes how an archive's entries are rooted.
type Layout int

const (
	// FlatLayout archives keep their files at the root. They are extracted
	// into a new directory named after the extension.
	FlatLayout Layout = iota
	// NamespacedLayout archives already carry the <name>/ prefix on every
	// entry and are extracted one level up.
	NamespacedLayout
	// InvalidLayout archives mix both and are rejected.
	InvalidLayout
)

func (l Layout) String() string {
	switch l {
	case FlatLayout:
		return "flat"
	case NamespacedLayout:
		return "namespaced"
	default:
		return "invalid"
	}
}

// ClassifyLayout decides the layout of an archive from its entry names.
// An entry is inside when it starts with expected + "/". An archive with no
// entries is flat.
func ClassifyLayout(names []string, expected string) Layout {
	prefix := expected + "/"
	inside, outside := 0, 0
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			inside++
		} else {
			outside++
		}
	}

	switch {
	case inside > 0 && outside > 0:
		return InvalidLayout
	case inside > 0:
		return NamespacedLayout
	default:
		return FlatLayout
	}
}

// EntryNames lists the entry names of the archive at path.
func EntryNames(path string) ([]string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, &ExtractionError{Op: "open", Path: path, Err: err}
	}
	defer reader.Close()

	names := make([]string, 0, len(reader.File))
	for _, f := range reader.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// InspectArchive opens the archive at path and classifies its layout.
// Open failures are reported as *ExtractionError.
func InspectArchive(path, expected string) (Layout, error) {
	names, err := EntryNames(path)
	if err != nil {
		return InvalidLayout, err
	}
	return ClassifyLayout(names, expected), nil
}
