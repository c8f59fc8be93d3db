// Package bookmarkfile extracts bookmarks from an exported browser bookmark
// document (the Netscape bookmark HTML format or any HTML page with links).
package bookmarkfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/olgkv/bookmarkchecker/internal/domain"
)

// NoTitle is used for anchors without text.
const NoTitle = "No Title"

var (
	ErrNotHTML     = errors.New("file is not an HTML bookmark file")
	ErrEmptyFile   = errors.New("file appears to be empty")
	ErrNoBookmarks = errors.New("no http(s) bookmarks found")
)

// IsHTML reports whether an upload looks like an HTML document, judged by its
// declared content type or, when that is missing or generic, its extension.
func IsHTML(filename, contentType string) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && mediaType == "text/html" {
			return true
		}
		if err == nil && mediaType != "application/octet-stream" {
			return false
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// Parse reads a bookmark document and returns every anchor whose link is an
// absolute http or https URL, in document order. contentType may carry a
// charset parameter; without one, documents that are not valid UTF-8 have
// their encoding sniffed from the markup.
func Parse(r io.Reader, contentType string) ([]domain.Bookmark, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bookmark file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var body io.Reader = bytes.NewReader(data)
	if declaresCharset(contentType) || !utf8.Valid(data) {
		if utf8Reader, err := charset.NewReader(bytes.NewReader(data), contentType); err == nil {
			body = utf8Reader
		}
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse bookmark file: %w", err)
	}

	var bookmarks []domain.Bookmark
	doc.Find("a").Each(func(_ int, s *goquery.Selection) {
		href, ok := normalizeURL(s.AttrOr("href", ""))
		if !ok {
			return
		}
		title := strings.TrimSpace(s.Text())
		if title == "" {
			title = NoTitle
		}
		bookmarks = append(bookmarks, domain.Bookmark{Title: title, URL: href})
	})

	if len(bookmarks) == 0 {
		return nil, ErrNoBookmarks
	}
	return bookmarks, nil
}

func declaresCharset(contentType string) bool {
	_, params, err := mime.ParseMediaType(contentType)
	return err == nil && params["charset"] != ""
}

// normalizeURL keeps only absolute http(s) links and lowercases the scheme.
func normalizeURL(href string) (string, bool) {
	href = strings.TrimSpace(href)
	for _, scheme := range []string{"http://", "https://"} {
		if len(href) >= len(scheme) && strings.EqualFold(href[:len(scheme)], scheme) {
			return scheme + href[len(scheme):], true
		}
	}
	return "", false
}
