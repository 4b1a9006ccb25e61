package gitrepo

import (
	"encoding/json"
	"fmt"
)

// parseLinguist decodes `github-linguist --json` output, which maps
// language name to a size/percentage pair, e.g.
//
//	{"Go": {"size": 12345, "percentage": "97.30"}, "Shell": {"size": 342, "percentage": "2.70"}}
//
// The returned size is the sum over all languages.
func parseLinguist(out []byte) (map[string]int64, int64, error) {
	var raw map[string]struct {
		Size int64 `json:"size"`
	}
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, 0, fmt.Errorf("unexpected linguist output: %w", err)
	}
	languages := make(map[string]int64, len(raw))
	var size int64
	for lang, v := range raw {
		languages[lang] = v.Size
		size += v.Size
	}
	return languages, size, nil
}
