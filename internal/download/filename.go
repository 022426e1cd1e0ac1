package download

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

const maxTitleLength = 50

// MediaKind distinguishes the media a task fetches.
type MediaKind string

const (
	KindThumbnail MediaKind = "thumbnail"
	KindVideo     MediaKind = "video"
)

// defaultExtension is used when the source URL carries no usable extension.
func (k MediaKind) defaultExtension() string {
	if k == KindVideo {
		return ".mp4"
	}

	return ".jpg"
}

// sanitizeTitle makes a display title safe for filenames across platforms:
// invalid characters become underscores, whitespace runs collapse, and the
// result is bounded in length.
func sanitizeTitle(title string) string {
	if title == "" {
		return ""
	}

	// Strip any path components before character filtering.
	title = filepath.Base(title)

	replacer := strings.NewReplacer(
		"<", "_", ">", "_", ":", "_", `"`, "_",
		"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
	)
	title = replacer.Replace(title)

	title = strings.Join(strings.Fields(title), "_")

	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	return strings.TrimRight(title, ". ")
}

// baseFilename synthesizes the deterministic name for a task: itemID plus
// sanitized title plus an extension inferred from the URL or the kind
// default. No timestamp: identical content must resolve to the same name
// across repeated runs.
func baseFilename(sourceURL, itemID string, kind MediaKind, title string) string {
	extension := ""

	if u, err := url.Parse(sourceURL); err == nil {
		ext := strings.ToLower(path.Ext(u.Path))
		// Anything longer is likely not a real extension.
		if ext != "" && len(ext) <= 5 {
			extension = ext
		}
	}

	if extension == "" {
		extension = kind.defaultExtension()
	}

	if sanitized := sanitizeTitle(title); sanitized != "" {
		return fmt.Sprintf("%s_%s%s", itemID, sanitized, extension)
	}

	return itemID + extension
}

// withSuffix inserts an incrementing counter before the extension:
// video.mp4 -> video_1.mp4.
func withSuffix(filename string, counter int) string {
	ext := path.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)

	return fmt.Sprintf("%s_%d%s", stem, counter, ext)
}
