package media

import (
	"path/filepath"
	"strings"
)

// Kind is the extension class of an uploaded file.
type Kind int

const (
	KindUnsupported Kind = iota
	KindImage
	KindVideo
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindArchive:
		return "archive"
	default:
		return "unsupported"
	}
}

// ClassifyName maps a filename to its extension class.
func ClassifyName(name string) Kind {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "png", "jpg", "jpeg":
		return KindImage
	case "mp4", "avi", "mov":
		return KindVideo
	case "zip":
		return KindArchive
	default:
		return KindUnsupported
	}
}

// IsMaskPath reports whether an archive entry path names a mask: the
// filename or any path segment contains "mask", case-insensitive.
func IsMaskPath(entryPath string) bool {
	for _, seg := range strings.Split(entryPath, "/") {
		if strings.Contains(strings.ToLower(seg), "mask") {
			return true
		}
	}
	return false
}

// TopLevelDir returns the first path segment of an archive entry, or ""
// when the entry sits at the archive root (depth < 2).
func TopLevelDir(entryPath string) string {
	parts := strings.Split(strings.Trim(entryPath, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// SupportedPairing reports whether an (image, mask) extension-class
// combination can be processed: image-image, video-image or video-video.
func SupportedPairing(imageKind, maskKind Kind) bool {
	switch {
	case imageKind == KindImage && maskKind == KindImage:
		return true
	case imageKind == KindVideo && maskKind == KindImage:
		return true
	case imageKind == KindVideo && maskKind == KindVideo:
		return true
	default:
		return false
	}
}
