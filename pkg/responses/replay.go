package responses

import (
	"context"
	"encoding/base64"
	"net/url"
	"regexp"
	"strings"

	"github.com/openresponses/openresponses/pkg/api"
)

// maxInlineImageLen is the length above which a base64-shaped text is
// treated as an inline image payload.
const maxInlineImageLen = 5000

// mergedInput resolves the conversation for a request. Without a
// previous_response_id this is just the request's own items. With one, the
// stored input and output items of that response come first, and the merged
// list is run through the image strip so replayed turns never carry raw
// image bytes back upstream.
func (o *Orchestrator) mergedInput(ctx context.Context, req *api.ResponseCreateRequest) ([]api.InputItem, error) {
	current := req.InputItems()
	if req.PreviousResponseID == "" {
		return current, nil
	}
	if o.store == nil {
		return nil, api.NewError(api.KindPreviousResponseNotFound, "previous_response_id requires a configured store")
	}

	prevInputs, err := o.store.GetInputItems(ctx, req.PreviousResponseID)
	if err != nil {
		return nil, err
	}
	prevOutputs, err := o.store.GetOutputItems(ctx, req.PreviousResponseID)
	if err != nil {
		return nil, err
	}

	merged := make([]api.InputItem, 0, len(prevInputs)+len(prevOutputs)+len(current))
	merged = append(merged, prevInputs...)
	merged = append(merged, prevOutputs...)
	merged = append(merged, current...)
	return StripImages(merged), nil
}

// StripImages replaces image payloads in an item list with short sentinel
// markers, preserving position and every other field. Three detections, in
// order: outputs of image_generation calls, content parts typed
// output_image, and long base64-shaped texts carrying a known image
// signature. The rewrite is idempotent.
func StripImages(items []api.InputItem) []api.InputItem {
	imageCallIDs := make(map[string]bool)
	for _, it := range items {
		if it.Type == api.ItemTypeFunctionCall && it.Name == "image_generation" && it.CallID != "" {
			imageCallIDs[it.CallID] = true
		}
	}

	out := make([]api.InputItem, len(items))
	copy(out, items)
	for i := range out {
		it := &out[i]
		switch it.Type {
		case api.ItemTypeFunctionCallOutput:
			if imageCallIDs[it.CallID] && !isImageSentinel(it.Output) {
				it.Output = imageSentinel(it.Output)
			} else if stripped, changed := stripText(it.Output); changed {
				it.Output = stripped
			}
		case "", api.ItemTypeMessage:
			if content, changed := stripContent(it.Content); changed {
				it.Content = content
			}
		}
	}
	return out
}

func stripContent(content interface{}) (interface{}, bool) {
	switch v := content.(type) {
	case string:
		return stripText(v)
	case []api.ContentPart:
		parts := make([]api.ContentPart, len(v))
		copy(parts, v)
		changed := false
		for i := range parts {
			if stripPart(&parts[i]) {
				changed = true
			}
		}
		if !changed {
			return content, false
		}
		return parts, true
	case []interface{}:
		parts := make([]interface{}, len(v))
		copy(parts, v)
		changed := false
		for i, e := range parts {
			m, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			if replaced, ok := stripPartMap(m); ok {
				parts[i] = replaced
				changed = true
			}
		}
		if !changed {
			return content, false
		}
		return parts, true
	default:
		return content, false
	}
}

func stripPart(p *api.ContentPart) bool {
	if p.Type == api.PartTypeOutputImage || p.Type == api.PartTypeInputImage {
		if p.ImageURL != "" && !isImageSentinel(p.ImageURL) {
			p.ImageURL = imageSentinel(p.ImageURL)
			return true
		}
		if p.Text != "" && !isImageSentinel(p.Text) {
			p.Text = imageSentinel(p.Text)
			return true
		}
		return false
	}
	if stripped, changed := stripText(p.Text); changed {
		p.Text = stripped
		return true
	}
	return false
}

// stripPartMap handles parts that arrived as generic JSON maps. Only the
// image-bearing keys are rewritten; everything else is kept as-is.
func stripPartMap(m map[string]interface{}) (map[string]interface{}, bool) {
	t, _ := m["type"].(string)
	text, _ := m["text"].(string)
	imageURL, _ := m["image_url"].(string)

	if t == api.PartTypeOutputImage || t == api.PartTypeInputImage {
		replaced := copyMap(m)
		changed := false
		if imageURL != "" && !isImageSentinel(imageURL) {
			replaced["image_url"] = imageSentinel(imageURL)
			changed = true
		}
		if text != "" && !isImageSentinel(text) {
			replaced["text"] = imageSentinel(text)
			changed = true
		}
		return replaced, changed
	}
	if stripped, changed := stripText(text); changed {
		replaced := copyMap(m)
		replaced["text"] = stripped
		return replaced, true
	}
	return nil, false
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// stripText applies the long-payload rule: text over the length cutoff that
// carries a base64 image is replaced with its format sentinel.
func stripText(s string) (string, bool) {
	if len(s) <= maxInlineImageLen {
		return s, false
	}
	if format, ok := detectImagePayload(s); ok {
		return sentinelFor(format), true
	}
	return s, false
}

var (
	base64Shape   = regexp.MustCompile(`^[A-Za-z0-9+/]*={0,2}$`)
	sentinelShape = regexp.MustCompile(`^<[A-Za-z]+>\.\.\.$`)
)

func isImageSentinel(s string) bool { return sentinelShape.MatchString(s) }

// imageSentinel renders a known image payload as "<FMT>...". Payloads whose
// format cannot be inferred become "<image>...".
func imageSentinel(s string) string {
	if format, ok := detectImagePayload(s); ok {
		return sentinelFor(format)
	}
	return "<image>..."
}

func sentinelFor(format string) string { return "<" + format + ">..." }

// detectImagePayload extracts a base64 candidate from the text (raw, data
// URL, "base64:" prefix, or an image-bearing URL query parameter) and
// matches it against the known signatures.
func detectImagePayload(s string) (string, bool) {
	for _, candidate := range base64Candidates(s) {
		if !base64Shape.MatchString(candidate) {
			continue
		}
		if format, ok := imageFormat(candidate); ok {
			return format, true
		}
	}
	return "", false
}

func base64Candidates(s string) []string {
	var out []string
	switch {
	case strings.HasPrefix(s, "data:image/"):
		if idx := strings.Index(s, "base64,"); idx >= 0 {
			out = append(out, s[idx+len("base64,"):])
		}
	case strings.HasPrefix(s, "base64:"):
		out = append(out, s[len("base64:"):])
	case strings.Contains(s, "://"):
		if u, err := url.Parse(s); err == nil {
			q := u.Query()
			for _, key := range []string{"data", "image", "content", "base64"} {
				if v := q.Get(key); v != "" {
					out = append(out, v)
				}
			}
		}
	default:
		out = append(out, s)
	}
	return out
}

// imageFormat matches the candidate against base64 encodings of the image
// magic numbers, then falls back to decoding a prefix and checking bytes.
func imageFormat(candidate string) (string, bool) {
	switch {
	case strings.HasPrefix(candidate, "/9j/"):
		return "JPEG", true
	case strings.HasPrefix(candidate, "iVBORw0KGgo"):
		return "PNG", true
	case strings.HasPrefix(candidate, "UklGR"):
		return "WEBP", true
	case strings.HasPrefix(candidate, "R0lGOD"):
		return "GIF", true
	}

	prefix := candidate
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	prefix = prefix[:len(prefix)-len(prefix)%4]
	decoded, err := base64.StdEncoding.DecodeString(prefix)
	if err != nil || len(decoded) < 4 {
		return "", false
	}
	switch {
	case decoded[0] == 0xFF && decoded[1] == 0xD8:
		return "JPEG", true
	case decoded[0] == 0x89 && decoded[1] == 0x50 && decoded[2] == 0x4E && decoded[3] == 0x47:
		return "PNG", true
	case strings.HasPrefix(string(decoded), "RIFF"):
		return "WEBP", true
	case strings.HasPrefix(string(decoded), "GIF8"):
		return "GIF", true
	}
	return "", false
}
