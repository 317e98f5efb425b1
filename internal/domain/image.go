package domain

import "time"

// MetadataKeyStorageURL is the metadata document key holding the object
// storage URL of the original image bytes.
const MetadataKeyStorageURL = "s3_url"

// ImageRecord is one gallery image row in the metadata store.
// ID is the sole join key against the vector store for the record's lifetime.
type ImageRecord struct {
	ID         string
	Filename   string
	UploadedAt time.Time
	Metadata   map[string]any
}

// StorageURL returns the object storage URL from the metadata document,
// or "" when the record predates object storage.
func (r *ImageRecord) StorageURL() string {
	if r.Metadata == nil {
		return ""
	}
	if u, ok := r.Metadata[MetadataKeyStorageURL].(string); ok {
		return u
	}
	return ""
}
