package hittingset

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Key derives the cache key for a solver instance: a weak hash over a
// canonical serialization of the inputs. Any permutation of the lists, of
// the members within a list, or of the dates map yields the same key.
func Key(lists [][]string, dates map[string]int64) string {
	canon := make([][]string, len(lists))
	for i, lst := range lists {
		c := make([]string, len(lst))
		copy(c, lst)
		sort.Strings(c)
		canon[i] = c
	}
	sort.Slice(canon, func(i, j int) bool { return lessStrings(canon[i], canon[j]) })

	versions := make([]string, 0, len(dates))
	for v := range dates {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	pairs := make([][2]interface{}, len(versions))
	for i, v := range versions {
		pairs[i] = [2]interface{}{v, dates[v]}
	}

	// Marshalling canonical slices cannot fail.
	b, _ := json.Marshal([2]interface{}{canon, pairs})
	return strconv.FormatUint(xxhash.Sum64(b), 16)
}

func lessStrings(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
