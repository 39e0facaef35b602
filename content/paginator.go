package content

import (
	"strconv"
	"strings"

	"yatube/models"
)

// Page is one window of a feed.
type Page struct {
	Posts    []models.Post
	Number   int
	PageSize int
	NumPages int
	Count    int64
}

func (p *Page) HasNext() bool {
	return p.Number < p.NumPages
}

func (p *Page) HasPrevious() bool {
	return p.Number > 1
}

func (p *Page) HasOtherPages() bool {
	return p.HasNext() || p.HasPrevious()
}

func (p *Page) NextPageNumber() int {
	return p.Number + 1
}

func (p *Page) PreviousPageNumber() int {
	return p.Number - 1
}

func (p *Page) PageRange() []int {
	pages := make([]int, p.NumPages)
	for i := range pages {
		pages[i] = i + 1
	}
	return pages
}

// ParsePageNumber reads the page query parameter. Missing or malformed input is page 1.
func ParsePageNumber(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 1
	}
	return n
}

// numPages never returns less than 1: an empty feed still has an empty first page.
func numPages(count int64, size int) int {
	if count == 0 {
		return 1
	}
	return int((count + int64(size) - 1) / int64(size))
}

// clampPage pulls number into [1, last].
func clampPage(number, last int) int {
	if number < 1 {
		return 1
	}
	if number > last {
		return last
	}
	return number
}
