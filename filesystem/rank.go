package filesystem

import (
	"math"
	"slices"
	"time"
)

// Ranked is a snapshot of a directory offered by quick access
type Ranked struct {
	Path          string
	VisitCount    uint64
	LastVisitedAt time.Time
	Score         float64
}

// Score weighs a directory's visit count by how recently it was visited:
//
//	visitCount / (1 + ln(1 + secondsSinceLastVisit))
//
// Visits in the future count as just now. A never visited directory scores 0.
func Score(dir *Node, now time.Time) float64 {
	elapsed := max(now.Sub(dir.lastVisit).Seconds(), 0)
	return float64(dir.visitCount) / (1 + math.Log1p(elapsed))
}

// TopDirectories returns at most k directories of the tree under root ordered
// by descending [Score]. Directories with equal scores keep pre-order.
func TopDirectories(root *Node, k int, now time.Time) []*Node {
	if k <= 0 {
		return nil
	}
	type scored struct {
		dir   *Node
		score float64
	}
	var all []scored
	root.walk(func(n *Node) bool {
		if !n.IsDir() {
			return false
		}
		all = append(all, scored{dir: n, score: Score(n, now)})
		return true
	})
	slices.SortStableFunc(all, func(a, b scored) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		default:
			return 0
		}
	})

	top := make([]*Node, 0, min(k, len(all)))
	for _, s := range all[:min(k, len(all))] {
		top = append(top, s.dir)
	}
	return top
}

// QuickAccess ranks the directories of the whole tree, see [TopDirectories]
func (fs *FileSystem) QuickAccess(k int) []Ranked {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	now := fs.now()
	top := TopDirectories(fs.root, k, now)
	ranked := make([]Ranked, 0, len(top))
	for _, dir := range top {
		ranked = append(ranked, Ranked{
			Path:          dir.Path(),
			VisitCount:    dir.visitCount,
			LastVisitedAt: dir.lastVisit,
			Score:         Score(dir, now),
		})
	}
	return ranked
}
