package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// Clean strips non-printable characters, collapses runs of whitespace into
// a single space and trims the result.
func Clean(s string) string {
	s = removeNonPrintable(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// CleanText is Clean applied to the text of a selection.
func CleanText(sel *goquery.Selection) string {
	return Clean(sel.Text())
}

// SegmentsAfterBreak returns the cleaned, non-empty text of every child of
// node that comes after its first <br>. It returns nil if node has no
// direct <br> child.
func SegmentsAfterBreak(node *html.Node) []string {
	if node == nil {
		return nil
	}

	var segments []string
	seenBreak := false
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && child.DataAtom == atom.Br {
			seenBreak = true
			continue
		}
		if !seenBreak {
			continue
		}
		text := Clean(GetText(child))
		if text == "" {
			continue
		}
		segments = append(segments, text)
	}
	if !seenBreak {
		return nil
	}
	return segments
}
