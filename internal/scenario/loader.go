package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrNotFound = errors.New("scenario not found")

// Load reads <dir>/<id>.json. The id must be a bare name; anything that
// looks like a path is rejected so a request can never escape the directory.
func Load(dir, id string) (*Scenario, error) {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	raw, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading scenario %q: %w", id, err)
	}

	var scn Scenario
	if err := json.Unmarshal(raw, &scn); err != nil {
		return nil, fmt.Errorf("parsing scenario %q: %w", id, err)
	}
	scn.ID = id
	scn.applyDefaults()
	return &scn, nil
}

// List loads every scenario in the directory, sorted by id. Unparseable
// files are skipped; a broken file must not take the catalogue down.
func List(dir string) ([]Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing scenarios in %q: %w", dir, err)
	}

	var scenarios []Scenario
	for _, path := range paths {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		scn, err := Load(dir, id)
		if err != nil {
			continue
		}
		scenarios = append(scenarios, *scn)
	}
	sort.Slice(scenarios, func(i, j int) bool { return scenarios[i].ID < scenarios[j].ID })
	return scenarios, nil
}
