package navigation

import (
	"strings"

	"golang.org/x/net/html"

	"foodtrack/internal/geo"
	"foodtrack/internal/types"
)

// StripHTML returns the text content of an instruction fragment with
// entities decoded and whitespace collapsed. Block tags become word breaks.
func StripHTML(s string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "div", "br", "p", "li":
				b.WriteByte(' ')
			}
		}
	}
}

// NearestStep returns the index of the step whose start or end coordinate is
// closest to p, or -1 when there are no steps. Ties keep the earlier step.
func NearestStep(p types.Point, steps []Step) int {
	best, bestDist := -1, 0.0
	for i, s := range steps {
		d := min(geo.HaversineMeters(p, s.Start), geo.HaversineMeters(p, s.End))
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// advance never moves the pointer backwards.
func advance(current, nearest int) int {
	return max(current, nearest)
}
