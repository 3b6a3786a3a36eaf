package tile

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
)

const svgPrefix = "data:image/svg+xml,"

// textLine is one centered line of tile text.
type textLine struct {
	yPct    int
	size    float64
	opacity float64
}

// lines are the planet, overlay and date rows, top to bottom.
var lines = [3]textLine{
	{yPct: 55, size: 42, opacity: 1},
	{yPct: 68, size: 28, opacity: 0.85},
	{yPct: 82, size: 22, opacity: 0.7},
}

// SVG renders the tile as an SVG document.
func SVG(c Content) []byte {
	color := escape(c.Color)

	var b bytes.Buffer
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, Size, Size, Size, Size)
	b.WriteString(`<defs>`)
	b.WriteString(`<radialGradient id="glow" cx="50%" cy="50%" r="70%">`)
	fmt.Fprintf(&b, `<stop offset="0%%" stop-color="%s" stop-opacity="0.85"/>`, color)
	fmt.Fprintf(&b, `<stop offset="100%%" stop-color="%s" stop-opacity="0"/>`, color)
	b.WriteString(`</radialGradient>`)
	b.WriteString(`<linearGradient id="scan" x1="0%" x2="0%" y1="0%" y2="100%">`)
	fmt.Fprintf(&b, `<stop offset="0%%" stop-color="%s" stop-opacity="0"/>`, color)
	fmt.Fprintf(&b, `<stop offset="50%%" stop-color="%s" stop-opacity="0.3"/>`, color)
	fmt.Fprintf(&b, `<stop offset="100%%" stop-color="%s" stop-opacity="0"/>`, color)
	b.WriteString(`</linearGradient>`)
	b.WriteString(`</defs>`)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="#050510"/>`, Size, Size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="url(#glow)" opacity="0.8"/>`, Size, Size)
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="url(#scan)" opacity="0.65"/>`, Size, Size)
	for i, text := range [3]string{c.Planet, c.Overlay, c.Date} {
		l := lines[i]
		fmt.Fprintf(&b, `<text x="50%%" y="%d%%" fill="#ffffff" font-size="%g" text-anchor="middle" font-family="'Space Mono', monospace" opacity="%g">%s</text>`,
			l.yPct, l.size, l.opacity, escape(text))
	}
	b.WriteString(`</svg>`)
	return b.Bytes()
}

func svgDataURL(c Content) string {
	return svgPrefix + url.PathEscape(string(SVG(c)))
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
