package pdf

import (
	"context"
)

// Provider renders printable sales documents.
type Provider interface {
	RenderDocument(ctx context.Context, data DocumentData) ([]byte, error)
}

type NoOpProvider struct{}

func (p *NoOpProvider) RenderDocument(ctx context.Context, data DocumentData) ([]byte, error) {
	return nil, nil
}
