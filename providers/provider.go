package providers

import (
	"context"

	"trackdeck/models"
)

// Provider ist das Interface, das jede Mail-Quelle (z.B. Gmail, Microsoft
// Graph) implementieren muss.
type Provider interface {
	// Fetch holt bis zu max eingehende Nachrichten und gibt sie als
	// standardisierte InboundMessage-Modelle zurück.
	Fetch(ctx context.Context, max int) ([]*models.InboundMessage, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "gmail").
	Name() string
}
