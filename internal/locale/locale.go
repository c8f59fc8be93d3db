// Package locale picks the language used for export column headers.
package locale

import (
	"strings"

	"golang.org/x/text/language"
)

type Lang string

const (
	English Lang = "en"
	Chinese Lang = "zh"
)

// Labels are the user-facing strings of tabular exports.
type Labels struct {
	Index        string
	Title        string
	URL          string
	Status       string
	ErrorMessage string
	SheetName    string
	ReportTitle  string
}

var labels = map[Lang]Labels{
	English: {
		Index:        "Index",
		Title:        "Title",
		URL:          "URL",
		Status:       "Status",
		ErrorMessage: "Error Message",
		SheetName:    "Bookmarks",
		ReportTitle:  "Bookmark link report",
	},
	Chinese: {
		Index:        "序号",
		Title:        "标题",
		URL:          "URL",
		Status:       "状态",
		ErrorMessage: "错误信息",
		SheetName:    "书签",
		ReportTitle:  "书签链接报告",
	},
}

var (
	supported = []Lang{English, Chinese}
	matcher   = language.NewMatcher([]language.Tag{language.English, language.Chinese})
)

func (l Lang) Labels() Labels {
	if lb, ok := labels[l]; ok {
		return lb
	}
	return labels[English]
}

// Negotiate resolves an explicit language choice first and falls back to an
// Accept-Language header. English is the default.
func Negotiate(explicit, acceptLanguage string) Lang {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		tag, err := language.Parse(explicit)
		if err == nil {
			return match(tag)
		}
	}
	if acceptLanguage != "" {
		tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
		if err == nil && len(tags) > 0 {
			return match(tags...)
		}
	}
	return English
}

func match(tags ...language.Tag) Lang {
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	return supported[idx]
}
