package batch

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/akhil324/sec-edgar-filings/pkg/errors"
)

// List returns the units under dir written with prefix, ordered by batch
// number. Files whose suffix is not a batch number are ignored.
func List(dir, prefix string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_batch_*"+FileExt))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid file prefix").
			WithDetail("prefix", prefix)
	}

	type unit struct {
		path string
		n    int
	}
	units := make([]unit, 0, len(matches))
	for _, m := range matches {
		n, ok := batchNumber(filepath.Base(m), prefix)
		if !ok {
			continue
		}
		units = append(units, unit{path: m, n: n})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].n < units[j].n })

	files := make([]string, len(units))
	for i, u := range units {
		files[i] = u.path
	}
	return files, nil
}

func batchNumber(name, prefix string) (int, bool) {
	digits := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"_batch_"), FileExt)
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 || strconv.Itoa(n) != digits {
		return 0, false
	}
	return n, true
}
