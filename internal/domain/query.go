package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// PageIndex returns the zero-based index of the first item on a page.
func PageIndex(page, pageSize int) int {
	return (page - 1) * pageSize
}

// PageCount returns the number of pages needed for total items.
func PageCount(total, pageSize int) int {
	if total == 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPageSize applies the default and upper bound to a requested page size.
func ClampPageSize(size int) int {
	if size <= 0 {
		return DefaultPageSize
	}
	if size > MaxPageSize {
		return MaxPageSize
	}
	return size
}

// Paginate returns the slice of items on the given one-based page.
// The input is never mutated; an out-of-range page yields an empty slice.
func Paginate[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	start := PageIndex(page, pageSize)
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// matchesQuery is a case-insensitive substring match.
func matchesQuery(haystack, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(query))
}

// FilterProjects returns the projects matching a name/description query and
// an optional status. Pure: the input slice is never mutated.
func FilterProjects(projects []Project, query string, status ProjectStatus) []Project {
	out := make([]Project, 0, len(projects))
	for _, p := range projects {
		if status != "" && p.Status != status {
			continue
		}
		if !matchesQuery(p.Name, query) && !matchesQuery(p.Description, query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// SortProjects returns a sorted copy. Supported keys: name, status,
// created_at (default), updated_at.
func SortProjects(projects []Project, key string, order SortOrder) []Project {
	out := make([]Project, len(projects))
	copy(out, projects)

	less := func(a, b Project) bool {
		switch key {
		case "name":
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case "status":
			return a.Status < b.Status
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if order == OrderDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// FilterStories returns the stories matching a title/description query, an
// optional status, and an optional epic. Pure: the input is never mutated.
func FilterStories(stories []Story, query string, status StoryStatus, epicID *uuid.UUID) []Story {
	out := make([]Story, 0, len(stories))
	for _, s := range stories {
		if status != "" && s.Status != status {
			continue
		}
		if epicID != nil && (s.EpicID == nil || *s.EpicID != *epicID) {
			continue
		}
		if !matchesQuery(s.Title, query) && !matchesQuery(s.Description, query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SortStories returns a sorted copy. Supported keys: title, priority,
// backlog_position (default), created_at, updated_at.
func SortStories(stories []Story, key string, order SortOrder) []Story {
	out := make([]Story, len(stories))
	copy(out, stories)

	less := func(a, b Story) bool {
		switch key {
		case "title":
			return strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case "priority":
			return priorityRank(a.Priority) < priorityRank(b.Priority)
		case "created_at":
			return a.CreatedAt.Before(b.CreatedAt)
		case "updated_at":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.BacklogPosition < b.BacklogPosition
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if order == OrderDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// FilterSessions returns the sessions matching a name query and an optional
// state. Pure: the input is never mutated.
func FilterSessions(sessions []Session, query string, state SessionState) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if state != "" && s.State != state {
			continue
		}
		if !matchesQuery(s.Name, query) && !matchesQuery(s.StoryTitle, query) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SortSessions returns a sorted copy. Supported keys: name, created_at (default).
func SortSessions(sessions []Session, key string, order SortOrder) []Session {
	out := make([]Session, len(sessions))
	copy(out, sessions)

	less := func(a, b Session) bool {
		if key == "name" {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if order == OrderDesc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}
