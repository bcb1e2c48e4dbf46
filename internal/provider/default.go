package provider

import (
	"log/slog"
	"time"
)

// Default lists the built-in providers in priority order. GIF precedes the
// generic still-image provider.
func Default(ff FrameExtractor, frameOffset time.Duration, log *slog.Logger) []Provider {
	return []Provider{
		GIF(),
		Image(),
		Video(ff, frameOffset, log),
	}
}
