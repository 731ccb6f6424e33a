package switchboard

import (
	"fmt"
	"regexp"
	"strconv"
)

var indexSuffix = regexp.MustCompile(`^(.*)~(\d+)$`)

// splitDesignator splits the index out of a designator.
//
// E.g. splitDesignator("web~1") returns ("web", 1). If no index suffix is
// present, index defaults to the given default.
func splitDesignator(s string, def int) (name string, index int) {
	if m := indexSuffix.FindStringSubmatch(s); m != nil {
		// The regexp only matches digits, so Atoi fails only on overflow;
		// it then returns the largest int, which lookup rejects as a bad
		// index.
		i, _ := strconv.Atoi(m[2])
		return m[1], i
	}
	return s, def
}

// joinDesignator reverses splitDesignator.
func joinDesignator(name string, index int) string {
	return fmt.Sprintf("%s~%d", name, index)
}
