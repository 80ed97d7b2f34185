package supervisor

import (
	"fmt"
	"os"
	"strings"
)

// Discover lists the configuration units in dir in directory order.
// Subdirectories and hidden files (editor swap files, dotfiles) are skipped.
func Discover(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config dir: %w", err)
	}

	units := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !isUnitName(entry.Name()) || entry.IsDir() {
			continue
		}
		units = append(units, entry.Name())
	}
	return units, nil
}

func isUnitName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".")
}
