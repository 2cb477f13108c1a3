package hierarchy

import "github.com/harrisonrobin/todoist-notion-sync/pkg/model"

// SortByHierarchy orders tasks so that every parent precedes its children.
// Tasks whose parent is not part of the input are treated as roots. Ties keep
// the input order.
func SortByHierarchy(tasks []model.Task) []model.Task {
	ordered, _ := SortDetectCycles(tasks)
	return ordered
}

// SortDetectCycles is SortByHierarchy that also returns the tasks it could not
// place because their parent chain loops back on itself. Those tasks are not
// part of the ordered result.
func SortDetectCycles(tasks []model.Task) (ordered []model.Task, cyclic []model.Task) {
	present := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		present[t.ID] = true
	}

	children := make(map[string][]int)
	inDegree := make([]int, len(tasks))
	for i, t := range tasks {
		if t.ParentID != "" && t.ParentID != t.ID && present[t.ParentID] {
			children[t.ParentID] = append(children[t.ParentID], i)
			inDegree[i] = 1
		} else if t.ParentID != "" && t.ParentID == t.ID {
			// a task that is its own parent can never be released
			inDegree[i] = 1
		}
	}

	queue := make([]int, 0, len(tasks))
	for i := range tasks {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	placed := make([]bool, len(tasks))
	ordered = make([]model.Task, 0, len(tasks))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		placed[i] = true
		ordered = append(ordered, tasks[i])
		for _, c := range children[tasks[i].ID] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	for i, t := range tasks {
		if !placed[i] {
			cyclic = append(cyclic, t)
		}
	}
	return ordered, cyclic
}
