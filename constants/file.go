package constants

// Upload limits and accepted content types for ticket attachments.
const (
	MaxUploadBytes = 50 * 1024 * 1024
)

// AllowedContentTypes for attachment uploads. Some browsers send PDFs as
// octet-stream, so both are accepted.
var AllowedContentTypes = map[string]struct{}{
	"application/pdf":          {},
	"application/octet-stream": {},
}
