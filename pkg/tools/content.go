package tools

import (
	"time"

	"github.com/magpie-ai/magpie/pkg/webpage"
)

// extractPageText strips a fetched page down to readable text, truncated to
// the tool payload cap.
func extractPageText(raw string) string {
	return webpage.ExtractText(raw, contentTruncateLen)
}

// extractPublishedDate pulls a publication date from a fetched page.
func extractPublishedDate(raw string) (t time.Time, ok bool) {
	return webpage.ExtractPublishedDate(raw)
}
