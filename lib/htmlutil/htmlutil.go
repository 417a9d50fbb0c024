package htmlutil

import (
	"bytes"
	"context"
	"lapets-backend/lib/textutil"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("lapets/lib/htmlutil")

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

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText returns the visible text of a selection with whitespace
// collapsed.
func CleanText(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
		buffer.WriteByte(' ')
	}
	return textutil.Squash(removeNonPrintable(buffer.String()))
}

// FirstText returns the text of the first element under sel matching
// selector that has non-empty text, or "" when nothing matches.
func FirstText(sel *goquery.Selection, selector string) string {
	var out string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = CleanText(s)
		return out == ""
	})
	return out
}

// FirstAttr returns the first non-empty attribute value out of attrs on
// the first element matching selector.
func FirstAttr(sel *goquery.Selection, selector string, attrs ...string) string {
	found := sel
	if selector != "" {
		found = sel.Find(selector).First()
	}
	for _, a := range attrs {
		v := strings.TrimSpace(found.AttrOr(a, ""))
		if v != "" {
			return v
		}
	}
	return ""
}

// Scripts returns the text contents of every inline <script> in the
// document.
func Scripts(ctx context.Context, doc *goquery.Document) []string {
	_, span := tracer.Start(ctx, "Scripts")
	defer span.End()

	var out []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		for _, n := range s.Nodes {
			text := GetText(n)
			if strings.TrimSpace(text) == "" {
				continue
			}
			out = append(out, text)
		}
	})
	span.AddEvent("scripts", trace.WithAttributes(
		attribute.Int("count", len(out)),
	))
	return out
}

type Anchor struct {
	Name string
	Href string
}

// GetAnchors lists every anchor in sel with its cleaned name.
func GetAnchors(sel *goquery.Selection) []Anchor {
	anchors := []Anchor{}
	sel.Find("a[href]").AddSelection(sel.Filter("a[href]")).Each(func(_ int, a *goquery.Selection) {
		anchors = append(anchors, Anchor{
			Name: CleanText(a),
			Href: strings.TrimSpace(a.AttrOr("href", "")),
		})
	})
	return anchors
}
