// Package extract turns a fetched ranking page, JSON or HTML, into ranking
// candidates.
package extract

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// ParseError reports a payload that could not be parsed at all.
type ParseError struct {
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("extract: malformed %s payload: %v", e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extractor is stateless apart from its sanitizing policy and safe for
// concurrent use.
type Extractor struct {
	policy *bluemonday.Policy
}

// New returns an Extractor that strips all markup from extracted values.
func New() *Extractor {
	return &Extractor{policy: bluemonday.StrictPolicy()}
}

// Extract parses body as JSON when contentType mentions json or the trimmed
// body opens an object or array, and as HTML otherwise. A recognized but
// empty page yields no candidates and no error.
func (x *Extractor) Extract(contentType, body string) ([]ranking.Candidate, error) {
	trimmed := strings.TrimSpace(body)
	if isJSON(contentType, trimmed) {
		return x.fromJSON(trimmed)
	}
	return x.fromHTML(trimmed)
}

func isJSON(contentType, trimmed string) bool {
	return strings.Contains(strings.ToLower(contentType), "json") ||
		strings.HasPrefix(trimmed, "{") ||
		strings.HasPrefix(trimmed, "[")
}

func (x *Extractor) fromJSON(body string) ([]ranking.Candidate, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, &ParseError{Format: "json", Err: err}
	}

	switch v := root.(type) {
	case map[string]any:
		if h, ok := v["html"].(string); ok {
			return x.fromHTML(h)
		}
		if list, ok := v["list"].([]any); ok {
			return x.fromJSONList(list), nil
		}
	case []any:
		return x.fromJSONList(v), nil
	}
	return nil, nil
}

func (x *Extractor) fromJSONList(list []any) []ranking.Candidate {
	var out []ranking.Candidate
	for _, el := range list {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		r := record{
			brand:      x.jsonValue(obj, jsonBrandKeys),
			product:    x.jsonValue(obj, jsonProductKeys),
			price:      x.jsonValue(obj, jsonPriceKeys),
			rank:       x.jsonValue(obj, jsonRankKeys),
			productURL: x.jsonValue(obj, jsonURLKeys),
			imageURL:   x.jsonValue(obj, jsonImageKeys),
		}
		if c, ok := r.candidate(len(out) + 1); ok {
			out = append(out, c)
		}
	}
	return out
}

// jsonValue returns the first scalar under keys that is non-blank once
// cleaned. null, objects and arrays count as absent.
func (x *Extractor) jsonValue(obj map[string]any, keys []string) string {
	for _, k := range keys {
		var s string
		switch v := obj[k].(type) {
		case string:
			s = v
		case json.Number:
			s = v.String()
		case bool:
			s = fmt.Sprint(v)
		default:
			continue
		}
		if s = x.clean(s); s != "" {
			return s
		}
	}
	return ""
}

func (x *Extractor) fromHTML(body string) ([]ranking.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &ParseError{Format: "html", Err: err}
	}

	active := containerSelector
	containers := doc.Find(active)
	if containers.Length() == 0 {
		active = fallbackContainerSelector
		containers = doc.Find(active)
	}

	var (
		out      []ranking.Candidate
		selected []*goquery.Selection
	)
	containers.Each(func(_ int, s *goquery.Selection) {
		if isWrapper(s, active) || insideAny(s, selected) {
			return
		}
		selected = append(selected, s)

		r := record{
			brand:      x.firstText(s, htmlBrandSelectors),
			product:    x.firstText(s, htmlProductSelectors),
			price:      x.firstText(s, htmlPriceSelectors),
			rank:       x.firstText(s, htmlRankSelectors),
			productURL: firstAttr(s, linkSelector, "href"),
			imageURL:   firstAttr(s, imageSelector, "src", "data-src"),
		}
		if c, ok := r.candidate(len(out) + 1); ok {
			out = append(out, c)
		}
	})
	return out, nil
}

// isWrapper reports whether s holds more than one product, as a list or
// section element does: two or more outermost containers matched by sel, or
// two or more product names. Markers on the card itself do not count.
func isWrapper(s *goquery.Selection, sel string) bool {
	outermost := s.Find(sel).FilterFunction(func(_ int, c *goquery.Selection) bool {
		return c.ParentsUntilSelection(s).Filter(sel).Length() == 0
	})
	return outermost.Length() > 1 || s.Find(productNameSelector).Length() > 1
}

func insideAny(s *goquery.Selection, ancestors []*goquery.Selection) bool {
	node := s.Get(0)
	for _, a := range ancestors {
		if a.Get(0) != node && a.Contains(node) {
			return true
		}
	}
	return false
}

// first returns the first element matching sel, the container itself
// included.
func first(s *goquery.Selection, sel string) *goquery.Selection {
	if s.Is(sel) {
		return s
	}
	return s.Find(sel).First()
}

// firstText tries selectors in order. Attribute selectors read the
// attribute value and fall back to the element text.
func (x *Extractor) firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		el := first(s, sel)
		if el.Length() == 0 {
			continue
		}
		var v string
		if attr, ok := attributeOf(sel); ok {
			v, _ = el.Attr(attr)
			v = x.clean(v)
		}
		if v == "" {
			v = x.clean(el.Text())
		}
		if v != "" {
			return v
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, sel string, attrs ...string) string {
	el := first(s, sel)
	if el.Length() == 0 {
		return ""
	}
	for _, a := range attrs {
		if v, ok := el.Attr(a); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// attributeOf returns "data-price" for the selector "[data-price]".
func attributeOf(sel string) (string, bool) {
	if len(sel) > 2 && sel[0] == '[' && sel[len(sel)-1] == ']' {
		return sel[1 : len(sel)-1], true
	}
	return "", false
}

// clean strips markup, decodes entities and collapses whitespace.
func (x *Extractor) clean(s string) string {
	if strings.ContainsAny(s, "<&") {
		s = html.UnescapeString(x.policy.Sanitize(s))
	}
	return collapse(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
