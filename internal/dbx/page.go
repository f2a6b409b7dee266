package dbx

// Page is one slice of an ordered listing plus the total row count.
type Page[T any] struct {
	Items  []T
	Total  int64
	Offset int
	Limit  int
}

// Number is the 1-based page index implied by Offset and Limit.
func (p Page[T]) Number() int {
	if p.Limit <= 0 {
		return 1
	}
	return p.Offset/p.Limit + 1
}

// Pages is the number of pages needed to cover Total; at least 1.
func (p Page[T]) Pages() int {
	if p.Limit <= 0 || p.Total == 0 {
		return 1
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}
