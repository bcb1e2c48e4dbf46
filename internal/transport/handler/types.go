package handler

// RequestThumbnailParams is the body of POST /api/requests.
type RequestThumbnailParams struct {
	Workspace   string `json:"workspace" validate:"required,max=255"`
	ObjectID    string `json:"objectId" validate:"required,max=255"`
	ObjectClass string `json:"objectClass" validate:"required,max=255"`
	ThumbnailID string `json:"thumbnailId" validate:"required,max=255"`
}

type RequestThumbnailResponse struct {
	Created bool `json:"created"`
}

// RemoveThumbnailsParams is the body of DELETE /api/thumbnails.
type RemoveThumbnailsParams struct {
	Workspace   string `json:"workspace" validate:"required,max=255"`
	ObjectID    string `json:"objectId" validate:"required,max=255"`
	ObjectClass string `json:"objectClass" validate:"required,max=255"`
}

type RemoveThumbnailsResponse struct {
	Removed int `json:"removed"`
}
