package entities

import (
	"mime"
	"strings"
	"time"
)

const (
	// ClassBlob is the document class of stored binary objects.
	ClassBlob = "core:class:Blob"
	// ClassThumbnail is the document class that links an object to its preview blob.
	ClassThumbnail = "preview:class:ObjectThumbnail"
)

// ThumbnailRequest is a pending job record in the queue.
type ThumbnailRequest struct {
	ID          int64     `json:"id"`
	Workspace   string    `json:"workspace" validate:"required,max=255"`
	ObjectID    string    `json:"object_id" validate:"required,max=255"`
	ObjectClass string    `json:"object_class" validate:"required,max=255"`
	ThumbnailID string    `json:"thumbnail_id" validate:"required,max=255"`
	CreatedAt   time.Time `json:"created_at"`
}

// ObjectRef names a document in a workspace.
type ObjectRef struct {
	Workspace   string `json:"workspace" validate:"required,max=255"`
	ObjectID    string `json:"object_id" validate:"required,max=255"`
	ObjectClass string `json:"object_class" validate:"required,max=255"`
}

// Object is a document as returned by a workspace transactor. Blob documents
// carry ContentType and StorageID.
type Object struct {
	ID          string `json:"_id"`
	Class       string `json:"_class"`
	Space       string `json:"space"`
	ContentType string `json:"contentType,omitempty"`
	StorageID   string `json:"storageId,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// StorageKey is the blob store key holding the object's bytes.
func (o *Object) StorageKey() string {
	if o.StorageID != "" {
		return o.StorageID
	}
	return o.ID
}

// MediaType is the lower-cased content type without parameters.
func (o *Object) MediaType() string {
	ct := strings.TrimSpace(o.ContentType)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(ct)
}

// ThumbnailDocument associates an object with its generated preview blob.
type ThumbnailDocument struct {
	ID          string  `json:"_id"`
	Space       string  `json:"space"`
	ObjectID    string  `json:"objectId"`
	ObjectClass string  `json:"objectClass"`
	Thumbnail   *string `json:"thumbnail,omitempty"`
}

// Params are the target dimensions and encoding of generated previews.
type Params struct {
	Width  int
	Height int
	Format string
}

// ContentType of blobs produced with these params.
func (p Params) ContentType() string {
	return "image/" + p.Format
}
