package llm

import "context"

// Client writes YouTube metadata for a caption.
type Client interface {
	SuggestTags(ctx context.Context, caption string, count int) ([]string, error)
	Describe(ctx context.Context, caption string) (string, error)
}
