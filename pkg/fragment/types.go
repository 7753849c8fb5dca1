package fragment

import (
	"fmt"
	"mime"
	"strings"
)

// Supported base MIME types.
const (
	TypeTextPlain       = "text/plain"
	TypeTextHTML        = "text/html"
	TypeTextMarkdown    = "text/markdown"
	TypeApplicationJSON = "application/json"
	TypeImageJPEG       = "image/jpeg"
	TypeImagePNG        = "image/png"
	TypeImageWebP       = "image/webp"
)

// supportedTypes is the allowlist of base types a fragment may be created with.
// image/webp is a conversion target only.
var supportedTypes = map[string]struct{}{
	TypeTextPlain:       {},
	TypeTextHTML:        {},
	TypeTextMarkdown:    {},
	TypeApplicationJSON: {},
	TypeImageJPEG:       {},
	TypeImagePNG:        {},
}

// formatTable lists, per base type, the types its payload may be converted to.
// The base type itself is always first.
var formatTable = map[string][]string{
	TypeTextPlain:       {TypeTextPlain},
	TypeTextHTML:        {TypeTextHTML, TypeTextPlain},
	TypeTextMarkdown:    {TypeTextMarkdown, TypeTextHTML, TypeTextPlain},
	TypeApplicationJSON: {TypeApplicationJSON},
	TypeImageJPEG:       {TypeImageJPEG, TypeImagePNG, TypeImageWebP},
	TypeImagePNG:        {TypeImagePNG, TypeImageJPEG, TypeImageWebP},
}

// extensionTypes maps file extensions accepted on reads to MIME types.
var extensionTypes = map[string]string{
	".txt":  TypeTextPlain,
	".html": TypeTextHTML,
	".md":   TypeTextMarkdown,
	".json": TypeApplicationJSON,
	".jpg":  TypeImageJPEG,
	".jpeg": TypeImageJPEG,
	".png":  TypeImagePNG,
	".webp": TypeImageWebP,
}

// MimeTypeOf parses a Content-Type value and returns its lowercased base
// type/subtype with parameters stripped:
//
//	"text/html; charset=utf-8" -> "text/html"
func MimeTypeOf(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("empty content type")
	}

	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return "", fmt.Errorf("parse content type %q: %w", value, err)
	}

	// ParseMediaType accepts bare tokens such as "text"; a MIME type needs both halves.
	major, minor, ok := strings.Cut(mediaType, "/")
	if !ok || major == "" || minor == "" {
		return "", fmt.Errorf("parse content type %q: missing subtype", value)
	}

	return mediaType, nil
}

// IsSupportedType reports whether value parses as a Content-Type whose base
// type is in the supported set. Unparsable values are unsupported.
func IsSupportedType(value string) bool {
	base, err := MimeTypeOf(value)
	if err != nil {
		return false
	}
	_, ok := supportedTypes[base]
	return ok
}

// SupportedTypes returns the supported base types in a stable order.
func SupportedTypes() []string {
	return []string{
		TypeTextPlain,
		TypeTextHTML,
		TypeTextMarkdown,
		TypeApplicationJSON,
		TypeImageJPEG,
		TypeImagePNG,
	}
}

// FormatsFor returns the conversion formats for a base MIME type. Types
// missing from the table convert only to themselves. The returned slice is
// a copy and may be modified.
func FormatsFor(mimeType string) []string {
	formats, ok := formatTable[mimeType]
	if !ok {
		return []string{mimeType}
	}

	out := make([]string, len(formats))
	copy(out, formats)
	return out
}

// ExtensionType maps a file extension (with leading dot, any case) to the
// MIME type it requests.
func ExtensionType(ext string) (string, bool) {
	t, ok := extensionTypes[strings.ToLower(ext)]
	return t, ok
}
