package lifecycle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum-optimism/infra/op-recorder/types"
)

const (
	ResultFileSuffix    = "-result.json"
	ContainerFileSuffix = "-container.json"
)

// ResultsWriter persists finished report nodes
type ResultsWriter interface {
	WriteResult(result *types.TestResult) error
	WriteContainer(container *types.TestResultContainer) error
}

var (
	_ ResultsWriter = (*FileSystemResultsWriter)(nil)
	_ ResultsWriter = (*MemoryResultsWriter)(nil)
	_ ResultsWriter = MultiWriter(nil)
)

// FileSystemResultsWriter writes one JSON file per node into a results directory
type FileSystemResultsWriter struct {
	dir string
}

// NewFileSystemResultsWriter creates the results directory if needed
func NewFileSystemResultsWriter(dir string) (*FileSystemResultsWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("results directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}
	return &FileSystemResultsWriter{dir: dir}, nil
}

// Dir returns the results directory
func (w *FileSystemResultsWriter) Dir() string {
	return w.dir
}

func (w *FileSystemResultsWriter) WriteResult(result *types.TestResult) error {
	return w.writeJSON(result.UUID+ResultFileSuffix, result)
}

func (w *FileSystemResultsWriter) WriteContainer(container *types.TestResultContainer) error {
	return w.writeJSON(container.UUID+ContainerFileSuffix, container)
}

// writeJSON writes through a temp file so readers never observe a partial node
func (w *FileSystemResultsWriter) writeJSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}
	tmp, err := os.CreateTemp(w.dir, ".tmp-"+name)
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(w.dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move %s into place: %w", name, err)
	}
	return nil
}

// MemoryResultsWriter keeps flushed nodes in memory, in flush order
type MemoryResultsWriter struct {
	mu         sync.Mutex
	results    []*types.TestResult
	containers []*types.TestResultContainer
}

func NewMemoryResultsWriter() *MemoryResultsWriter {
	return &MemoryResultsWriter{}
}

func (w *MemoryResultsWriter) WriteResult(result *types.TestResult) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results = append(w.results, result)
	return nil
}

func (w *MemoryResultsWriter) WriteContainer(container *types.TestResultContainer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.containers = append(w.containers, container)
	return nil
}

// Results returns the flushed test cases
func (w *MemoryResultsWriter) Results() []*types.TestResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*types.TestResult, len(w.results))
	copy(out, w.results)
	return out
}

// Containers returns the flushed containers
func (w *MemoryResultsWriter) Containers() []*types.TestResultContainer {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*types.TestResultContainer, len(w.containers))
	copy(out, w.containers)
	return out
}

// Result returns the flushed test case with the given id
func (w *MemoryResultsWriter) Result(uuid string) (*types.TestResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.results {
		if r.UUID == uuid {
			return r, true
		}
	}
	return nil, false
}

// Container returns the flushed container with the given id
func (w *MemoryResultsWriter) Container(uuid string) (*types.TestResultContainer, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range w.containers {
		if c.UUID == uuid {
			return c, true
		}
	}
	return nil, false
}

// MultiWriter hands every node to each writer in turn
type MultiWriter []ResultsWriter

func (m MultiWriter) WriteResult(result *types.TestResult) error {
	var errs []error
	for _, w := range m {
		if err := w.WriteResult(result.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiWriter) WriteContainer(container *types.TestResultContainer) error {
	var errs []error
	for _, w := range m {
		if err := w.WriteContainer(container.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
