package domain

import "context"

type scratchDirKey struct{}

// WithScratchDir records the run's scratch directory. Components that must
// touch the filesystem create their temporary files under it.
func WithScratchDir(ctx context.Context, dir string) context.Context {
	return context.WithValue(ctx, scratchDirKey{}, dir)
}

// ScratchDir returns the run's scratch directory, or fallback when none is set
func ScratchDir(ctx context.Context, fallback string) string {
	if dir, ok := ctx.Value(scratchDirKey{}).(string); ok && dir != "" {
		return dir
	}
	return fallback
}
