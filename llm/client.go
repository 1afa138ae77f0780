// Package llm kapselt den Text-Generierungs-Kollaborateur hinter einem
// kleinen Interface. Die Antworten des Modells gelten als nicht
// vertrauenswürdig; Parsing und Validierung liegen beim Aufrufer.
package llm

import "context"

// CallSettings sind die unveränderlichen Call-Parameter eines Clients.
// Sie werden bei der Konstruktion übergeben, nie aus globalem Zustand
// gelesen.
type CallSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client ist das Interface für den Text-Generierungs-Service: ein Profil
// plus User-Prompt rein, eine Text-Completion raus. Das Profil bestimmt
// Instruktionen und Call-Settings des Aufrufs.
type Client interface {
	Complete(ctx context.Context, profile Profile, userPrompt string) (string, error)
}
