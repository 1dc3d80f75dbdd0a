package table

// Ellipsis marks a gap in VisiblePageNumbers.
const Ellipsis = -1

// maxPlainPages is the page count up to which every page number is shown.
const maxPlainPages = 7

// VisiblePageNumbers condenses the page list for a pager. Up to seven pages
// are listed in full. Beyond that the first and last pages stay visible, the
// current page keeps one neighbour on each side, and skipped runs collapse
// into Ellipsis:
//
//	current=1,  total=20: 1 2 3 4 5 … 20
//	current=10, total=20: 1 … 9 10 11 … 20
//	current=19, total=20: 1 … 16 17 18 19 20
func VisiblePageNumbers(current, total int) []int {
	if total < 1 {
		return nil
	}
	current = min(max(current, 1), total)

	if total <= maxPlainPages {
		pages := make([]int, total)
		for i := range pages {
			pages[i] = i + 1
		}
		return pages
	}

	switch {
	case current <= 4:
		return []int{1, 2, 3, 4, 5, Ellipsis, total}
	case current >= total-3:
		return []int{1, Ellipsis, total - 4, total - 3, total - 2, total - 1, total}
	default:
		return []int{1, Ellipsis, current - 1, current, current + 1, Ellipsis, total}
	}
}
