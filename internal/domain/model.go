package domain

import "time"

type LinkStatus string

const (
	StatusOK    LinkStatus = "ok"
	StatusError LinkStatus = "error"
)

// Bookmark is a title/URL pair extracted from a bookmark file.
type Bookmark struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Result is a Bookmark with its classified probe outcome.
// ErrorMessage is set if and only if Status is StatusError.
type Result struct {
	Bookmark
	Status       LinkStatus `json:"status"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

func OK(b Bookmark) Result {
	return Result{Bookmark: b, Status: StatusOK}
}

func Failed(b Bookmark, msg string) Result {
	return Result{Bookmark: b, Status: StatusError, ErrorMessage: msg}
}

type Summary struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Error int `json:"error"`
}

func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Status == StatusOK {
			s.OK++
		}
	}
	s.Error = s.Total - s.OK
	return s
}

// Run is one finished validation batch.
type Run struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Summary   Summary   `json:"summary"`
	Results   []Result  `json:"results"`
}

// Filter selects results by status before export.
type Filter string

const (
	FilterAll   Filter = "all"
	FilterOK    Filter = "ok"
	FilterError Filter = "error"
)

func (f Filter) Valid() bool {
	switch f {
	case FilterAll, FilterOK, FilterError:
		return true
	}
	return false
}

// Apply returns the results matching f, keeping their relative order.
func (f Filter) Apply(results []Result) []Result {
	if f == FilterAll || f == "" {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if string(r.Status) == string(f) {
			out = append(out, r)
		}
	}
	return out
}
