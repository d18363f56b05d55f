// Package reporting reads a results directory back into memory and renders the
// reconstructed hierarchy.
package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethereum-optimism/infra/op-recorder/lifecycle"
	"github.com/ethereum-optimism/infra/op-recorder/types"
)

// Results holds every node found in a results directory
type Results struct {
	Containers []*types.TestResultContainer
	Cases      []*types.TestResult
}

// LoadDir reads all result and container files in dir. Other files are ignored.
func LoadDir(dir string) (*Results, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory %s: %w", dir, err)
	}

	res := &Results{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(dir, name)
		switch {
		case strings.HasSuffix(name, lifecycle.ResultFileSuffix):
			var tr types.TestResult
			if err := readJSON(path, &tr); err != nil {
				return nil, err
			}
			res.Cases = append(res.Cases, &tr)
		case strings.HasSuffix(name, lifecycle.ContainerFileSuffix):
			var c types.TestResultContainer
			if err := readJSON(path, &c); err != nil {
				return nil, err
			}
			res.Containers = append(res.Containers, &c)
		}
	}

	// directory order is by file name, which is random for uuids
	sort.SliceStable(res.Cases, func(i, j int) bool { return res.Cases[i].Start < res.Cases[j].Start })
	sort.SliceStable(res.Containers, func(i, j int) bool { return res.Containers[i].Start < res.Containers[j].Start })
	return res, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
