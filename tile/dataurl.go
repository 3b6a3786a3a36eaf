package tile

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotDataURL is returned by Decode for references that are not data URLs.
var ErrNotDataURL = errors.New("tile: not a data URL")

// Decode splits a data URL into its media type and payload.
func Decode(ref string) (mime string, data []byte, err error) {
	rest, ok := strings.CutPrefix(ref, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload", ErrNotDataURL)
	}

	params := strings.Split(header, ";")
	mime = params[0]
	if mime == "" {
		mime = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	if isBase64 {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", nil, fmt.Errorf("tile: decode base64 payload: %w", err)
		}
		return mime, data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("tile: decode payload: %w", err)
	}
	return mime, []byte(s), nil
}
