package metadata

import (
	"path/filepath"
	"strings"
)

// TypeBucket is a coarse semantic classification used by search filters and
// storage statistics. Buckets are derived from the MIME type prefix when one
// is recorded, falling back to the file extension.
type TypeBucket string

const (
	BucketAny      TypeBucket = ""
	BucketImage    TypeBucket = "image"
	BucketVideo    TypeBucket = "video"
	BucketAudio    TypeBucket = "audio"
	BucketDocument TypeBucket = "document"
	BucketFolder   TypeBucket = "folder"
	BucketOther    TypeBucket = "other"
)

// documentMimeTypes lists MIME types classified as documents beyond the
// text/* prefix.
var documentMimeTypes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
	"application/vnd.ms-powerpoint":                                     {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/rtf":  {},
	"application/json": {},
	"application/xml":  {},
}

// documentExtensions lists extensions classified as documents when no MIME
// type is recorded.
var documentExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {},
	".ppt": {}, ".pptx": {}, ".txt": {}, ".md": {}, ".rtf": {},
	".csv": {}, ".json": {}, ".xml": {},
}

var extensionBuckets = map[string]TypeBucket{
	".png": BucketImage, ".jpg": BucketImage, ".jpeg": BucketImage,
	".gif": BucketImage, ".bmp": BucketImage, ".webp": BucketImage,
	".svg": BucketImage, ".heic": BucketImage,
	".mp4": BucketVideo, ".mov": BucketVideo, ".avi": BucketVideo,
	".mkv": BucketVideo, ".webm": BucketVideo,
	".mp3": BucketAudio, ".wav": BucketAudio, ".flac": BucketAudio,
	".ogg": BucketAudio, ".m4a": BucketAudio,
}

// BucketOf classifies a node into its semantic type bucket.
func BucketOf(n *Node) TypeBucket {
	if n.Type == NodeTypeFolder {
		return BucketFolder
	}
	return BucketOfFile(n.MimeType, n.Name)
}

// BucketOfFile classifies a file by MIME type, falling back to the name's
// extension when no MIME type is recorded.
func BucketOfFile(mimeType, name string) TypeBucket {
	if mimeType != "" {
		mt := strings.ToLower(mimeType)
		// Strip parameters such as "; charset=utf-8"
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}

		switch {
		case strings.HasPrefix(mt, "image/"):
			return BucketImage
		case strings.HasPrefix(mt, "video/"):
			return BucketVideo
		case strings.HasPrefix(mt, "audio/"):
			return BucketAudio
		case strings.HasPrefix(mt, "text/"):
			return BucketDocument
		}
		if _, ok := documentMimeTypes[mt]; ok {
			return BucketDocument
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	if bucket, ok := extensionBuckets[ext]; ok {
		return bucket
	}
	if _, ok := documentExtensions[ext]; ok {
		return BucketDocument
	}

	return BucketOther
}
