// Package textprep builds the text representations the classifier and the
// extraction chain read. It never mutates its input.
package textprep

import "strings"

const (
	titleRepeat    = 3
	abstractRepeat = 2

	introShare      = 0.20
	conclusionShare = 0.15
	middleStart     = 0.30
	middleEnd       = 0.70
	middleStride    = 10
)

// Source is the document text a view is built from.
type Source struct {
	Title      string
	Abstract   string
	Categories []string
	FullText   string
}

// View is the weighted, lower-cased classification view.
type View struct {
	Title       string
	Abstract    string
	Text        string
	HasFullText bool
}

// Prepare builds the classification view. Title is repeated three times and
// the abstract twice; when full text is present only its introduction,
// conclusion and a strided sample of the middle are included. Without full
// text the title and abstract get one extra repetition each.
func Prepare(src Source) View {
	title := strings.TrimSpace(src.Title)
	abstract := strings.TrimSpace(src.Abstract)
	full := strings.TrimSpace(src.FullText)

	var parts []string
	parts = appendRepeated(parts, title, titleRepeat)
	parts = appendRepeated(parts, abstract, abstractRepeat)
	if cats := joinCategories(src.Categories, " "); cats != "" {
		parts = append(parts, cats)
	}

	if full != "" {
		intro, conclusion, middle := sections([]rune(full))
		parts = append(parts, intro, conclusion, middle)
	} else {
		parts = appendRepeated(parts, title, 1)
		parts = appendRepeated(parts, abstract, 1)
	}

	return View{
		Title:       strings.ToLower(title),
		Abstract:    strings.ToLower(abstract),
		Text:        strings.ToLower(strings.Join(nonEmpty(parts), " ")),
		HasFullText: full != "",
	}
}

// FullView renders the complete document for the extraction chain.
func FullView(src Source) string {
	var parts []string
	if t := strings.TrimSpace(src.Title); t != "" {
		parts = append(parts, "Title: "+t)
	}
	if a := strings.TrimSpace(src.Abstract); a != "" {
		parts = append(parts, "Abstract: "+a)
	}
	if cats := joinCategories(src.Categories, ", "); cats != "" {
		parts = append(parts, "Categories: "+cats)
	}
	if f := strings.TrimSpace(src.FullText); f != "" {
		parts = append(parts, "Content: "+f)
	}
	return strings.Join(parts, "\n\n")
}

// Truncate cuts s to at most n runes. n <= 0 disables truncation.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func sections(r []rune) (intro, conclusion, middle string) {
	n := len(r)
	introLen := int(float64(n) * introShare)
	conclusionLen := int(float64(n) * conclusionShare)
	start := int(float64(n) * middleStart)
	end := int(float64(n) * middleEnd)

	var sampled []rune
	for i := start; i < end; i += middleStride {
		sampled = append(sampled, r[i])
	}
	return string(r[:introLen]), string(r[n-conclusionLen:]), string(sampled)
}

func appendRepeated(parts []string, s string, n int) []string {
	if s == "" {
		return parts
	}
	for i := 0; i < n; i++ {
		parts = append(parts, s)
	}
	return parts
}

func joinCategories(categories []string, sep string) string {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return strings.Join(out, sep)
}

func nonEmpty(parts []string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
