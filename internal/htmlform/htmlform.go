// Package htmlform harvests the values a browser would submit from a server-rendered form.
package htmlform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SearchFormExclusions are the button-like fields of the portal search form that must not be
// echoed back, since submitting them triggers the wrong server-side handler.
var SearchFormExclusions = []*regexp.Regexp{
	regexp.MustCompile(`^ctl00\$MainContent\$BtnDescargar$`),
	regexp.MustCompile(`^ctl00\$MainContent\$BtnBusqueda$`),
	regexp.MustCompile(`^ctl00\$MainContent\$BtnImprimir$`),
	regexp.MustCompile(`^ctl00\$MainContent\$BtnCancelar$`),
	regexp.MustCompile(`^seleccionador$`),
}

var buttonTypes = map[string]struct{}{
	"submit": {},
	"reset":  {},
	"button": {},
	"image":  {},
}

// Document is a parsed HTML page.
type Document struct {
	doc *goquery.Document
}

// Parse reads an HTML page.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Selection exposes the underlying goquery selection for callers that need raw traversal.
func (d *Document) Selection() *goquery.Selection {
	return d.doc.Selection
}

// Fields returns name -> value for every <input> and <select> inside the elements matched by
// formSelector. Button inputs, unchecked radios and checkboxes, unnamed elements and names
// matching any exclusion are skipped.
func (d *Document) Fields(formSelector string, exclusions ...*regexp.Regexp) map[string]string {
	fields := make(map[string]string)
	excluded := func(name string) bool {
		if name == "" {
			return true
		}
		for _, re := range exclusions {
			if re.MatchString(name) {
				return true
			}
		}
		return false
	}

	forms := d.doc.Find(formSelector)
	forms.Find("input").Each(func(_ int, input *goquery.Selection) {
		name, _ := input.Attr("name")
		if excluded(name) {
			return
		}
		kind := strings.ToLower(input.AttrOr("type", "text"))
		if _, isButton := buttonTypes[kind]; isButton {
			return
		}
		if (kind == "radio" || kind == "checkbox") && !hasAttr(input, "checked") {
			return
		}
		fields[name] = input.AttrOr("value", "")
	})

	forms.Find("select").Each(func(_ int, sel *goquery.Selection) {
		name, _ := sel.Attr("name")
		if excluded(name) {
			return
		}
		fields[name] = selectValue(sel)
	})
	return fields
}

// selectValue returns the selected option, or the first option as a browser would.
func selectValue(sel *goquery.Selection) string {
	option := sel.Find("option[selected]").First()
	if option.Length() == 0 {
		option = sel.Find("option").First()
	}
	if option.Length() == 0 {
		return ""
	}
	if value, ok := option.Attr("value"); ok {
		return value
	}
	return strings.TrimSpace(option.Text())
}

func hasAttr(s *goquery.Selection, name string) bool {
	_, ok := s.Attr(name)
	return ok
}

// ImageSource returns the src attribute of the first element matched by selector.
func (d *Document) ImageSource(selector string) (string, bool) {
	src, ok := d.doc.Find(selector).First().Attr("src")
	if !ok || strings.TrimSpace(src) == "" {
		return "", false
	}
	return strings.TrimSpace(src), true
}

// Fields is a shortcut for Parse followed by Document.Fields.
func Fields(html, formSelector string, exclusions ...*regexp.Regexp) (map[string]string, error) {
	doc, err := Parse(html)
	if err != nil {
		return nil, err
	}
	return doc.Fields(formSelector, exclusions...), nil
}
