package media

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Sniffer classifies files by their content rather than their extension
type Sniffer struct{}

// IsImage reports whether path is a readable image file
func (Sniffer) IsImage(path string) bool {
	return hasMediaType(path, "image/")
}

// IsVideo reports whether path is a readable video file
func (Sniffer) IsVideo(path string) bool {
	return hasMediaType(path, "video/")
}

func hasMediaType(path, prefix string) bool {
	if path == "" {
		return false
	}
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt.String(), prefix)
}
