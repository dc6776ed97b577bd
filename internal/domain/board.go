package domain

import (
	"sort"

	"github.com/google/uuid"
)

// MoveStory returns the board after moving storyID to toColumn at toPosition.
// The input slice is never mutated. The result upholds the board invariants:
// every story sits in exactly one column, and positions within each column
// form a contiguous zero-based sequence. toPosition is clamped to the valid
// range for the target column, so callers may pass the drop index as-is.
func MoveStory(rows []SprintStory, storyID uuid.UUID, toColumn BoardColumn, toPosition int) ([]SprintStory, error) {
	if !ValidBoardColumn(toColumn) {
		return nil, ErrInvalidColumn
	}

	var moved *SprintStory
	rest := make([]SprintStory, 0, len(rows))
	for _, r := range rows {
		if r.StoryID == storyID {
			row := r
			moved = &row
			continue
		}
		rest = append(rest, r)
	}
	if moved == nil {
		return nil, ErrStoryNotOnBoard
	}

	columns := groupByColumn(rest)

	target := columns[toColumn]
	if toPosition < 0 {
		toPosition = 0
	}
	if toPosition > len(target) {
		toPosition = len(target)
	}

	moved.Column = toColumn
	target = append(target, SprintStory{})
	copy(target[toPosition+1:], target[toPosition:])
	target[toPosition] = *moved
	columns[toColumn] = target

	return flattenBoard(columns), nil
}

// RemoveFromBoard returns the board without storyID, with the source column
// renumbered to close the gap.
func RemoveFromBoard(rows []SprintStory, storyID uuid.UUID) ([]SprintStory, error) {
	found := false
	rest := make([]SprintStory, 0, len(rows))
	for _, r := range rows {
		if r.StoryID == storyID {
			found = true
			continue
		}
		rest = append(rest, r)
	}
	if !found {
		return nil, ErrStoryNotOnBoard
	}
	return flattenBoard(groupByColumn(rest)), nil
}

// AppendToBoard returns the board with storyID appended to the end of column.
func AppendToBoard(rows []SprintStory, sprintID, storyID uuid.UUID, column BoardColumn) ([]SprintStory, error) {
	if !ValidBoardColumn(column) {
		return nil, ErrInvalidColumn
	}
	for _, r := range rows {
		if r.StoryID == storyID {
			return nil, ErrStoryAlreadyOnBoard
		}
	}
	columns := groupByColumn(rows)
	columns[column] = append(columns[column], SprintStory{
		SprintID: sprintID,
		StoryID:  storyID,
		Column:   column,
	})
	return flattenBoard(columns), nil
}

// NormalizeBoard renumbers every column to a contiguous zero-based sequence,
// preserving the relative order given by the current positions.
func NormalizeBoard(rows []SprintStory) []SprintStory {
	return flattenBoard(groupByColumn(rows))
}

// CheckBoardInvariants returns false if any story appears more than once or
// any column's positions are not exactly 0..n-1.
func CheckBoardInvariants(rows []SprintStory) bool {
	seen := make(map[uuid.UUID]bool, len(rows))
	for _, r := range rows {
		if seen[r.StoryID] {
			return false
		}
		seen[r.StoryID] = true
	}

	for _, col := range groupByColumn(rows) {
		for i, r := range col {
			if r.Position != i {
				return false
			}
		}
	}
	return true
}

// groupByColumn splits rows per column, each slice sorted by position.
// Ties are broken by story ID so the result is deterministic.
func groupByColumn(rows []SprintStory) map[BoardColumn][]SprintStory {
	columns := make(map[BoardColumn][]SprintStory)
	for _, r := range rows {
		columns[r.Column] = append(columns[r.Column], r)
	}
	for _, col := range columns {
		sort.SliceStable(col, func(i, j int) bool {
			if col[i].Position != col[j].Position {
				return col[i].Position < col[j].Position
			}
			return col[i].StoryID.String() < col[j].StoryID.String()
		})
	}
	return columns
}

// flattenBoard renumbers each column and flattens in display-column order.
func flattenBoard(columns map[BoardColumn][]SprintStory) []SprintStory {
	out := make([]SprintStory, 0)
	for _, c := range BoardColumns {
		for i, r := range columns[c] {
			r.Position = i
			out = append(out, r)
		}
	}
	return out
}
