package ingest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/medgraph/internal/kg"
)

// utf8BOM keeps spreadsheet tools from guessing a legacy encoding.
const utf8BOM = "\ufeff"

// Export writes node_<label>.csv and rel_<type>.csv files for offline bulk
// import. It returns the written file names.
func Export(acc *Accumulator, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ingest: export: %w", err)
	}
	var files []string

	diseaseHeader := append([]string{"name"}, kg.DiseaseProperties...)
	var diseaseRows [][]string
	for _, d := range acc.Diseases() {
		diseaseRows = append(diseaseRows, []string{
			d.Name, d.Desc, d.Prevent, d.Cause, d.EasyGet, d.CureLasttime, d.CuredProb,
			strings.Join(d.CureDepartment, "、"), strings.Join(d.CureWay, "、"),
		})
	}
	name, err := writeCSV(dir, "node_disease.csv", diseaseHeader, diseaseRows)
	if err != nil {
		return files, err
	}
	files = append(files, name)

	for _, label := range kg.Labels {
		if label == kg.LabelDisease {
			continue
		}
		var rows [][]string
		for _, n := range acc.Names(label) {
			rows = append(rows, []string{n})
		}
		name, err := writeCSV(dir, "node_"+strings.ToLower(string(label))+".csv", []string{"name"}, rows)
		if err != nil {
			return files, err
		}
		files = append(files, name)
	}

	// belongs_to carries two pair sets; they share one file and differ by label columns.
	byType := map[string][][]string{}
	for _, spec := range kg.Relationships {
		for _, p := range acc.UniquePairs(spec.Kind) {
			byType[spec.Type] = append(byType[spec.Type], []string{p.Start, string(spec.Start), p.End, string(spec.End), spec.Display})
		}
	}
	for _, t := range kg.RelationshipTypes() {
		name, err := writeCSV(dir, "rel_"+t+".csv", []string{"start", "start_label", "end", "end_label", "name"}, byType[t])
		if err != nil {
			return files, err
		}
		files = append(files, name)
	}
	return files, nil
}

func writeCSV(dir, name string, header []string, rows [][]string) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("ingest: export %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.WriteString(utf8BOM); err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", err
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("ingest: export %s: %w", name, err)
	}
	return path, f.Close()
}
