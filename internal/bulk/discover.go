// ABOUTME: Discovery of export files laid out as <root>/<export>/<TYPE>/<TYPE>_*.csv.
// ABOUTME: Hidden export directories are ignored and results are sorted.
package bulk

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/harperreed/healthetl/internal/importer"
	"github.com/harperreed/healthetl/internal/logging"
)

// layout maps each data type to its directory and filename prefix.
var layout = map[importer.DataType]string{
	importer.Activity:  "ACTIVITY",
	importer.Sleep:     "SLEEP",
	importer.Sport:     "SPORT",
	importer.HeartRate: "HEARTRATE",
}

// Files groups discovered paths by data type.
type Files map[importer.DataType][]string

// Total returns the number of files across all data types.
func (f Files) Total() int {
	n := 0
	for _, paths := range f {
		n += len(paths)
	}
	return n
}

// DiscoverFiles scans one level of export directories under root. Every data
// type is present in the result, with an empty list when nothing matched.
func DiscoverFiles(root string, logger *log.Logger) Files {
	logger = logging.OrDiscard(logger)
	found := make(Files, len(layout))
	for _, dt := range importer.AllDataTypes {
		found[dt] = []string{}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		logger.Warn("cannot scan export root", "path", root, "err", err)
		return found
	}

	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		exportDir := filepath.Join(root, entry.Name())
		logger.Debug("scanning export directory", "dir", entry.Name())

		for dt, dir := range layout {
			matches, err := filepath.Glob(filepath.Join(exportDir, dir, dir+"_*.csv"))
			if err != nil {
				continue
			}
			found[dt] = append(found[dt], matches...)
		}
	}

	for dt := range found {
		sort.Strings(found[dt])
	}
	logger.Info("discovery complete", "files", found.Total())
	return found
}
