package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Summary file names written by WriteFiles.
const (
	SummaryFile = "RUN_SUMMARY.md"
	ShopFile    = "SHOP_PERIODS.csv"
	SkippedFile = "SKIPPED_UNITS.csv"
)

// WriteFiles writes the markdown summary and both CSV tables into dir,
// creating it if needed. It returns the written paths.
func WriteFiles(dir string, r *Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create summary dir: %w", err)
	}

	files := []struct {
		name    string
		content string
	}{
		{SummaryFile, RenderMarkdown(r)},
		{ShopFile, RenderShopCSV(r.ShopPeriods)},
		{SkippedFile, RenderSkippedCSV(r.SkippedUnits)},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			return paths, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
