// Package normalize reduces the heterogeneous completion payloads returned by
// compute backends to a canonical media result.
package normalize

import "strings"

// Result is the canonical media output of a job: the primary media reference
// and every media item found in the payload.
type Result struct {
	// Primary is the first media item, or nil when the payload held none
	Primary *string `json:"primary"`
	// All lists every extracted media item in payload order
	All []string `json:"all"`
}

// Empty reports whether no media was extracted.
func (r Result) Empty() bool {
	return r.Primary == nil && len(r.All) == 0
}

// Normalize extracts media from a backend completion payload. Five payload
// shapes are recognized, tried in fixed precedence order:
//
//  1. {"images": [<string>, ...]}, an array of raw media strings
//  2. {"images": [{"data": <string>}, ...]}, an array of data-wrapped objects
//  3. {"images": [{"image": <string>}, ...]}, an array of image-wrapped objects
//  4. {"image": <string>} or {"image": {"data"|"image"|"url": <string>}}
//  5. {"message": <string>}, a free-form field holding raw encoded media
//
// Bare encoded payloads without a scheme prefix are wrapped into data-URI
// form. An unrecognized shape yields an empty Result, never an error, so the
// caller can raise a domain-specific "no media in output" failure.
func Normalize(payload any) Result {
	root, ok := payload.(map[string]any)
	if !ok {
		return Result{}
	}

	if items, ok := root["images"].([]any); ok && len(items) > 0 {
		if all := collectMedia(items); len(all) > 0 {
			return toResult(all)
		}
	}

	if single, ok := root["image"]; ok {
		if media, ok := mediaFrom(single); ok {
			return toResult([]string{media})
		}
	}

	if message, ok := root["message"].(string); ok && message != "" {
		return toResult([]string{canonicalize(message)})
	}

	return Result{}
}

// collectMedia extracts media strings from a mixed array of raw strings,
// {data: ...} objects and {image: ...} objects.
func collectMedia(items []any) []string {
	var all []string
	for _, item := range items {
		if media, ok := mediaFrom(item); ok {
			all = append(all, media)
		}
	}
	return all
}

// mediaFrom extracts one media string from a raw string or a wrapping object.
func mediaFrom(item any) (string, bool) {
	switch v := item.(type) {
	case string:
		if v == "" {
			return "", false
		}
		return canonicalize(v), true
	case map[string]any:
		for _, key := range []string{"data", "image", "url"} {
			if s, ok := v[key].(string); ok && s != "" {
				return canonicalize(s), true
			}
		}
	}
	return "", false
}

// canonicalize wraps bare encoded payloads into data-URI form. Values that
// already carry a scheme prefix pass through unchanged.
func canonicalize(media string) string {
	if strings.HasPrefix(media, "data:") ||
		strings.HasPrefix(media, "http://") ||
		strings.HasPrefix(media, "https://") {
		return media
	}
	return "data:image/png;base64," + media
}

func toResult(all []string) Result {
	if len(all) == 0 {
		return Result{}
	}
	primary := all[0]
	return Result{Primary: &primary, All: all}
}
