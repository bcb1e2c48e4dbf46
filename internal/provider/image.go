package provider

import (
	"context"
	"strings"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/transactor"
)

func isStillImage(_ context.Context, obj *entities.Object) (bool, error) {
	mt := obj.MediaType()
	return strings.HasPrefix(mt, "image/") && mt != gifMediaType, nil
}

// Image serves still images as their own preview.
func Image() Provider {
	return Provider{
		Name:        "image/*",
		ObjectClass: entities.ClassBlob,
		Match:       isStillImage,
		Transform: func(_ context.Context, _ transactor.Connection, _ BlobStore, _ string, obj *entities.Object, _ entities.Params) (string, error) {
			return obj.ID, nil
		},
	}
}
