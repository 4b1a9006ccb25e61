// Package hittingset solves the minimum hitting set instances produced by
// conversion: pick the fewest versions covering every advisory, and among
// minimum covers, the one with the greatest total commit date.
//
// Instances are tiny (a repository's distinct affected versions), so an
// exact branch-and-bound search is used. Both stages terminate with a
// proof of optimality by exhaustion.
package hittingset

import (
	"sort"

	"github.com/eyeballvul/repovul"
)

// Solve returns a minimum-cardinality set of versions intersecting every
// input list; among all minimum covers it maximizes the sum of the
// versions' dates. Every member of every list must have a date.
//
// The result is sorted. The search branches over versions in sorted order,
// so the result is deterministic for any permutation of the inputs.
func Solve(lists [][]string, dates map[string]int64) ([]string, error) {
	if len(lists) == 0 {
		return []string{}, nil
	}
	s, err := newSearch(lists, dates)
	if err != nil {
		return nil, err
	}

	// Stage 1: minimum cardinality. Greedy gives the initial upper bound.
	s.best = s.greedy()
	s.bestSize = len(s.best)
	s.minimize(nil, make([]int, len(s.lists)))
	k := s.bestSize

	// Stage 2: fix the cardinality, maximize the date sum.
	s.bestDates = dateSum(s.best, s.dates)
	s.maximize(nil, make([]int, len(s.lists)), k)

	out := make([]string, len(s.best))
	for i, v := range s.best {
		out[i] = s.universe[v]
	}
	sort.Strings(out)
	return out, nil
}

type search struct {
	universe []string // sorted distinct versions
	dates    []int64  // indexed like universe
	lists    [][]int  // version indices per input list
	covers   [][]int  // version index -> input lists it hits

	best      []int
	bestSize  int
	bestDates int64
}

func newSearch(lists [][]string, dates map[string]int64) (*search, error) {
	seen := make(map[string]int)
	var universe []string
	for _, lst := range lists {
		if len(lst) == 0 {
			return nil, &repovul.Error{Op: "hittingset.Solve", Kind: repovul.ErrSolver, Message: "empty input list"}
		}
		for _, v := range lst {
			if _, ok := seen[v]; !ok {
				seen[v] = 0
				universe = append(universe, v)
			}
			if _, ok := dates[v]; !ok {
				return nil, &repovul.Error{Op: "hittingset.Solve", Kind: repovul.ErrSolver, Message: "version without date: " + v}
			}
		}
	}
	sort.Strings(universe)
	for i, v := range universe {
		seen[v] = i
	}
	s := &search{
		universe: universe,
		dates:    make([]int64, len(universe)),
		lists:    make([][]int, len(lists)),
		covers:   make([][]int, len(universe)),
	}
	for i, v := range universe {
		s.dates[i] = dates[v]
	}
	for i, lst := range lists {
		idx := make([]int, 0, len(lst))
		dedup := make(map[int]struct{}, len(lst))
		for _, v := range lst {
			j := seen[v]
			if _, ok := dedup[j]; ok {
				continue
			}
			dedup[j] = struct{}{}
			idx = append(idx, j)
		}
		sort.Ints(idx)
		s.lists[i] = idx
		for _, j := range idx {
			s.covers[j] = append(s.covers[j], i)
		}
	}
	return s, nil
}

// greedy picks the version hitting the most uncovered lists until all are
// covered. Its size is only an upper bound; ties break on lowest index.
func (s *search) greedy() []int {
	hits := make([]int, len(s.lists))
	var picked []int
	remaining := len(s.lists)
	for remaining > 0 {
		bestV, bestCt := -1, 0
		for v := range s.universe {
			ct := 0
			for _, li := range s.covers[v] {
				if hits[li] == 0 {
					ct++
				}
			}
			if ct > bestCt {
				bestV, bestCt = v, ct
			}
		}
		picked = append(picked, bestV)
		for _, li := range s.covers[bestV] {
			if hits[li] == 0 {
				hits[li] = 1
				remaining--
			}
		}
	}
	return picked
}

// minimize explores covers depth-first, pruning on the incumbent size.
// hits[i] counts how many picked versions hit list i.
func (s *search) minimize(picked []int, hits []int) {
	uncovered := -1
	for i, h := range hits {
		if h == 0 {
			uncovered = i
			break
		}
	}
	if uncovered == -1 {
		if len(picked) < s.bestSize {
			s.bestSize = len(picked)
			s.best = append([]int(nil), picked...)
		}
		return
	}
	if len(picked)+1 >= s.bestSize {
		// Even one more pick cannot improve on the incumbent.
		return
	}
	for _, v := range s.lists[uncovered] {
		for _, li := range s.covers[v] {
			hits[li]++
		}
		s.minimize(append(picked, v), hits)
		for _, li := range s.covers[v] {
			hits[li]--
		}
	}
}

// maximize enumerates covers of exactly size k, keeping the greatest date
// sum. The bound assumes every remaining pick could take the global
// maximum date; coarse, but instances are small.
func (s *search) maximize(picked []int, hits []int, k int) {
	uncovered := -1
	for i, h := range hits {
		if h == 0 {
			uncovered = i
			break
		}
	}
	if uncovered == -1 {
		if ds := dateSum(picked, s.dates); ds > s.bestDates {
			s.bestDates = ds
			s.best = append([]int(nil), picked...)
		}
		return
	}
	if len(picked) == k {
		return
	}
	maxDate := s.dates[0]
	for _, d := range s.dates[1:] {
		if d > maxDate {
			maxDate = d
		}
	}
	if dateSum(picked, s.dates)+int64(k-len(picked))*maxDate <= s.bestDates {
		return
	}
	for _, v := range s.lists[uncovered] {
		if contains(picked, v) {
			continue
		}
		for _, li := range s.covers[v] {
			hits[li]++
		}
		s.maximize(append(picked, v), hits, k)
		for _, li := range s.covers[v] {
			hits[li]--
		}
	}
}

func dateSum(picked []int, dates []int64) int64 {
	var sum int64
	for _, v := range picked {
		sum += dates[v]
	}
	return sum
}

func contains(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
