package activity

import "strings"

var imageContentTypes = map[string]struct{}{
	"image/jpg":  {},
	"image/jpeg": {},
	"image/png":  {},
	"image/gif":  {},
}

// IsImage reports whether the content type is one of the supported image types.
// The comparison is case-insensitive and exact.
func IsImage(contentType string) bool {
	_, ok := imageContentTypes[strings.ToLower(contentType)]
	return ok
}

// NormalizeImageAttachment replaces the activity text with the URL of the first
// image attachment. Activities without an image attachment are left untouched.
func NormalizeImageAttachment(a *Activity) {
	if a == nil {
		return
	}
	for _, att := range a.Attachments {
		if IsImage(att.ContentType) {
			a.Text = att.ContentURL
			return
		}
	}
}
