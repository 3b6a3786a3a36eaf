// Package tile produces the placeholder raster tiles shown for an overlay at
// a given time.
//
// A tile reference is a self-contained data URL, so the map engine can load
// it without any network access. Resolution is pure: the same planet, overlay
// and timestamp always produce the same bytes.
package tile

import (
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gogpu/planetmap/catalog"
	"github.com/gogpu/planetmap/timeline"
)

// DefaultColor is the overlay color used when no metadata is known.
const DefaultColor = "#24b2ff"

// Size is the edge length of a tile in pixels.
const Size = 512

// Format selects the encoding of resolved tiles.
type Format int

const (
	// FormatSVG emits data:image/svg+xml tiles.
	FormatSVG Format = iota
	// FormatPNG emits data:image/png;base64 tiles rasterized in process.
	FormatPNG
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatSVG:
		return "svg"
	case FormatPNG:
		return "png"
	default:
		return "unknown"
	}
}

// ParseFormat maps "svg" and "png" to a Format.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(s) {
	case "svg", "":
		return FormatSVG, true
	case "png":
		return FormatPNG, true
	}
	return FormatSVG, false
}

// Metadata answers overlay lookups without I/O.
// catalog.Store implements it from its overlay cache.
type Metadata interface {
	CachedOverlay(planetID, overlayID string) (catalog.Overlay, bool)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFormat sets the tile encoding. The default is FormatSVG.
func WithFormat(f Format) Option {
	return func(r *Resolver) {
		r.format = f
	}
}

// Resolver turns (planet, overlay, time) into a tile reference.
// A Resolver is safe for concurrent use.
type Resolver struct {
	meta   Metadata
	format Format
}

// NewResolver creates a Resolver. meta may be nil, in which case every
// overlay is treated as unknown.
func NewResolver(meta Metadata, opts ...Option) *Resolver {
	r := &Resolver{meta: meta}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the configured encoding.
func (r *Resolver) Format() Format { return r.format }

// Content is the visible content of a tile.
type Content struct {
	Planet  string
	Overlay string
	Date    string
	Color   string
}

// Describe computes what a tile shows without encoding it.
func (r *Resolver) Describe(planetID, overlayID, isoTime string) Content {
	c := Content{
		Planet:  Label(planetID),
		Overlay: Label(overlayID),
		Date:    formatDate(isoTime),
		Color:   DefaultColor,
	}
	if r.meta != nil {
		if o, ok := r.meta.CachedOverlay(planetID, overlayID); ok {
			c.Overlay = o.Label
			if o.Color != "" {
				c.Color = o.Color
			}
		}
	}
	return c
}

// Resolve returns the tile reference for overlayID on planetID at isoTime.
func (r *Resolver) Resolve(planetID, overlayID, isoTime string) string {
	c := r.Describe(planetID, overlayID, isoTime)
	if r.format == FormatPNG {
		return pngDataURL(c)
	}
	return svgDataURL(c)
}

// A cases.Caser carries state and must not be shared between goroutines.
var uppers = sync.Pool{
	New: func() any { return cases.Upper(language.Und) },
}

// Label derives a display label from an id: dashes and underscores become
// spaces and the first letter is upper-cased. The rest is left as is.
func Label(id string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(id)
	if s == "" {
		return s
	}
	_, n := utf8.DecodeRuneInString(s)
	c := uppers.Get().(cases.Caser)
	defer uppers.Put(c)
	return c.String(s[:n]) + s[n:]
}

func formatDate(iso string) string {
	t, ok := timeline.Parse(iso)
	if !ok {
		return iso
	}
	return t.UTC().Format("2006-01-02")
}
