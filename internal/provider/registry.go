package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/trunov/thumbnailer/internal/entities"
	"github.com/trunov/thumbnailer/internal/logger"
)

// Registry holds providers grouped by document class. The order of
// registration is the order of preference.
type Registry struct {
	log *slog.Logger

	mu      sync.RWMutex
	byClass map[string][]Provider
}

func NewRegistry(log *slog.Logger, providers ...Provider) *Registry {
	r := &Registry{
		log:     log.With(logger.Scope("registry")),
		byClass: map[string][]Provider{},
	}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byClass[p.ObjectClass] = append(r.byClass[p.ObjectClass], p)
}

// Resolve returns the first provider registered for obj's exact class whose
// predicate holds. A failing predicate ends the search with no result.
func (r *Registry) Resolve(ctx context.Context, obj *entities.Object) (Provider, bool) {
	r.mu.RLock()
	candidates := r.byClass[obj.Class]
	r.mu.RUnlock()

	if len(candidates) == 0 {
		r.log.Warn("no thumbnail providers registered for class",
			slog.String("object_class", obj.Class),
			slog.String("object_id", obj.ID))
		return Provider{}, false
	}

	for _, p := range candidates {
		if p.Match == nil {
			return p, true
		}
		ok, err := evaluate(ctx, p.Match, obj)
		if err != nil {
			r.log.Error("thumbnail provider predicate failed",
				slog.String("provider", p.Name),
				slog.String("object_class", obj.Class),
				slog.String("object_id", obj.ID),
				logger.Error(err))
			return Provider{}, false
		}
		if ok {
			return p, true
		}
	}

	r.log.Warn("no thumbnail provider matches object",
		slog.String("object_class", obj.Class),
		slog.String("object_id", obj.ID),
		slog.String("content_type", obj.ContentType))
	return Provider{}, false
}

func evaluate(ctx context.Context, match Predicate, obj *entities.Object) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("predicate panic: %v", rec)
		}
	}()
	return match(ctx, obj)
}
