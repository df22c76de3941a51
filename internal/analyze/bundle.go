package analyze

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/leapstack-labs/rqg/pkg/core"
)

// LoadBundle reads a run bundle written by the collector.
func LoadBundle(path string) (*core.Run, error) {
	const op = "load bundle"

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, core.NewError(core.ErrInput, op, fmt.Errorf("bundle not found: %s", path))
	}
	if err != nil {
		return nil, core.NewError(core.ErrInput, op, err)
	}
	return DecodeBundle(data)
}

// DecodeBundle parses bundle JSON and checks the fields analysis depends on.
func DecodeBundle(data []byte) (*core.Run, error) {
	const op = "load bundle"

	var run core.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, core.NewError(core.ErrInput, op, fmt.Errorf("invalid bundle: %w", err))
	}
	if run.RunID == "" {
		return nil, core.NewError(core.ErrInput, op, fmt.Errorf("invalid bundle: run_id is required"))
	}
	for i, tr := range run.TestResults {
		if tr == nil {
			return nil, core.NewError(core.ErrInput, op, fmt.Errorf("invalid bundle: test_results[%d] is null", i))
		}
		if tr.TestID == "" {
			return nil, core.NewError(core.ErrInput, op, fmt.Errorf("invalid bundle: test_results[%d] has no test_id", i))
		}
	}
	return &run, nil
}
