// Package artifact implements the immutable artifact store: one directory
// per stage namespace, one CSV file per artifact, finalized by atomic rename
// so a reader never observes a half-written file.
package artifact

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Namespaces owned by each pipeline stage.
const (
	NamespaceReport    = "ads_report"
	NamespaceChannel   = "youtube_channel"
	NamespaceExclusion = "exclusion"
)

// Store writes and lists artifacts under a root directory.
type Store struct {
	logger *slog.Logger
	root   string
}

// NewStore creates the store, ensuring the root and namespace directories exist.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("artifact root must not be empty")
	}
	for _, ns := range []string{NamespaceReport, NamespaceChannel, NamespaceExclusion} {
		if err := os.MkdirAll(filepath.Join(root, ns), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create artifact namespace %s: %w", ns, err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Write persists one artifact. The file only becomes visible under its final
// name after the content is flushed and synced; writers never rewrite an
// existing artifact's content, they add new files.
func (s *Store) Write(namespace, name string, header []string, rows [][]string) (string, error) {
	if !strings.HasSuffix(name, ".csv") {
		name += ".csv"
	}
	dir := filepath.Join(s.root, namespace)
	final := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp artifact: %w", err)
	}
	defer func() {
		// No-ops once the rename has happened.
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write artifact header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write artifact row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("failed to finalize artifact: %w", err)
	}

	s.logger.Debug("artifact written",
		"namespace", namespace,
		"name", name,
		"rows", len(rows))

	return final, nil
}

// List returns the finalized artifact paths in a namespace, sorted by name.
// In-flight temp files and anything that is not a CSV are skipped.
func (s *Store) List(namespace string) ([]string, error) {
	dir := filepath.Join(s.root, namespace)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list artifacts in %s: %w", namespace, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".csv") {
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Read loads one artifact, returning the header and data rows. Records with
// the wrong field count are returned as-is; dropping them is the reader's
// call (the query layer counts what it drops).
func (s *Store) Read(path string) ([]string, [][]string, error) {
	f, err := os.Open(path) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open artifact %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // schema drift is handled by the caller
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}
