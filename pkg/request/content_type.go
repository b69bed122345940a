package request

import (
	"mime"
	"regexp"
)

const (
	// ContentTypeApplicationJSON is set by the WithJSONBody method.
	ContentTypeApplicationJSON = "application/json"
	// ContentTypeForm is set for a body built from form params.
	ContentTypeForm = "application/x-www-form-urlencoded"

	jsonContentTypePattern = `^application/([a-zA-Z0-9\.\-]+\+)?json$`
)

var jsonContentTypeRegexp = regexp.MustCompile(jsonContentTypePattern)

// isJSONContentType matches JSON media types, parameters such as charset are ignored.
func isJSONContentType(contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	return jsonContentTypeRegexp.MatchString(contentType)
}
