package core

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Pagination bounds list queries. A zero Limit means the repository default applies.
type Pagination struct {
	Limit  int
	Offset int
}

const DefaultPageSize = 20

func (p Pagination) LimitOrDefault() int {
	if p.Limit <= 0 {
		return DefaultPageSize
	}
	return p.Limit
}
