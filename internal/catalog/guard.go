package catalog

import (
	"context"
	"fmt"
)

// CapabilityError reports multimodal content aimed at a model that does not
// declare image-input support.
type CapabilityError struct {
	ModelID string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("model %q does not support image input", e.ModelID)
}

// Guard performs the image-capability check for one turn. The catalog is
// consulted at most once regardless of how many calls in the turn carry
// images; a Guard is created per turn and not shared.
type Guard struct {
	provider *Provider

	fetched bool
	byID    map[string]bool
	fetchEr error
}

func NewGuard(provider *Provider) *Guard {
	return &Guard{provider: provider}
}

// Ensure is a no-op for text-only content. For multimodal content it verifies
// the model declares the image input modality; a catalog fetch failure blocks
// the send rather than letting the provider reject it.
func (g *Guard) Ensure(ctx context.Context, modelID string, hasMultimodal bool) error {
	if !hasMultimodal {
		return nil
	}
	if !g.fetched {
		g.fetched = true
		models, err := g.provider.Models(ctx)
		if err != nil {
			g.fetchEr = err
		} else {
			g.byID = make(map[string]bool, len(models))
			for _, m := range models {
				g.byID[m.ID] = m.ImageCapable()
			}
		}
	}
	if g.fetchEr != nil {
		return fmt.Errorf("capability check for %q: %w", modelID, g.fetchEr)
	}
	capable, found := g.byID[modelID]
	if !found || !capable {
		return &CapabilityError{ModelID: modelID}
	}
	return nil
}
