package domain

import (
	"reflect"
	"testing"
)

func TestSummarize(t *testing.T) {
	results := []Result{
		OK(Bookmark{Title: "a", URL: "https://a"}),
		Failed(Bookmark{Title: "b", URL: "https://b"}, "Request timed out"),
		OK(Bookmark{Title: "c", URL: "https://c"}),
	}

	got := Summarize(results)
	if got != (Summary{Total: 3, OK: 2, Error: 1}) {
		t.Fatalf("unexpected summary: %#v", got)
	}
	if Summarize(nil) != (Summary{}) {
		t.Fatalf("expected zero summary for empty input")
	}
}

func TestFilterApply(t *testing.T) {
	a := OK(Bookmark{Title: "a", URL: "https://a"})
	b := Failed(Bookmark{Title: "b", URL: "https://b"}, "HTTP 500: Internal Server Error")
	c := OK(Bookmark{Title: "c", URL: "https://c"})
	results := []Result{a, b, c}

	tests := []struct {
		filter Filter
		want   []Result
	}{
		{FilterAll, results},
		{"", results},
		{FilterOK, []Result{a, c}},
		{FilterError, []Result{b}},
	}

	for _, tc := range tests {
		if got := tc.filter.Apply(results); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("filter %q: got %#v", tc.filter, got)
		}
	}

	if Filter("broken").Valid() {
		t.Fatalf("unexpected valid filter")
	}
}
