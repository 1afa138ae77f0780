package graphmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"trackdeck/config"
	"trackdeck/models"

	"go.uber.org/zap"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher implementiert das Provider-Interface für Microsoft Graph.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Graph-Mail-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "graphmail"
}

// Fetch holt die neuesten Nachrichten in einem einzigen List-Call; Graph
// liefert Body und Preview direkt mit.
func (f *Fetcher) Fetch(ctx context.Context, max int) ([]*models.InboundMessage, error) {
	log := f.Logger.With(zap.Int("max", max))
	log.Debug("Starte Graph-Mail-Abfrage.")

	url := fmt.Sprintf("%s/me/messages?$top=%d&$orderby=receivedDateTime desc", f.Config.GraphBaseURL, max)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+f.Config.GraphAccessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph request failed: status %d", resp.StatusCode)
	}

	var listResp ListResponse
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, err
	}

	var messages []*models.InboundMessage
	for i := range listResp.Value {
		messages = append(messages, mapMessageToModel(&listResp.Value[i]))
	}

	log.Debug("Graph-Mail-Abfrage abgeschlossen", zap.Int("count", len(messages)))
	return messages, nil
}

// mapMessageToModel konvertiert eine Graph-Nachricht in unser internes
// InboundMessage-Modell.
func mapMessageToModel(msg *GraphMessage) *models.InboundMessage {
	out := &models.InboundMessage{
		ID:        msg.ID,
		Subject:   msg.Subject,
		FromName:  msg.From.EmailAddress.Name,
		FromEmail: msg.From.EmailAddress.Address,
		Snippet:   msg.BodyPreview,
	}
	if t, err := time.Parse(time.RFC3339, msg.ReceivedDateTime); err == nil {
		out.Date = t.Unix()
	}
	if msg.Body.ContentType == "text" {
		out.Body = msg.Body.Content
	}
	return out
}
