package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"trackdeck/config"
	"trackdeck/models"

	"go.uber.org/zap"
)

var (
	httpClient = &http.Client{Timeout: 60 * time.Second}
	fromRegex  = regexp.MustCompile(`^\s*(?:"?([^"<]*)"?\s*)?<?([^<>\s]+@[^<>\s]+)>?\s*$`)
)

// Fetcher kapselt die Logik zur Interaktion mit Gmail.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des Gmail-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "gmail"
}

// Fetch holt zuerst die IDs der neuesten Nachrichten und lädt dann die
// Details für jede ID parallel nach.
func (f *Fetcher) Fetch(ctx context.Context, max int) ([]*models.InboundMessage, error) {
	ids, err := f.listIDs(ctx, max)
	if err != nil {
		return nil, fmt.Errorf("fehler beim Auflisten der Gmail-Nachrichten: %w", err)
	}

	var messages []*models.InboundMessage
	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, 5) // Parallele Abfragen limitieren

	for _, id := range ids {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(id string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			msg, err := f.fetchMessage(ctx, id)
			if err != nil {
				f.Logger.Warn("Konnte Gmail-Nachricht nicht abrufen", zap.String("message_id", id), zap.Error(err))
				return
			}
			mu.Lock()
			messages = append(messages, msg)
			mu.Unlock()
		}(id)
	}

	wg.Wait()
	return messages, nil
}

// listIDs holt die IDs der neuesten Inbox-Nachrichten.
func (f *Fetcher) listIDs(ctx context.Context, max int) ([]string, error) {
	log := f.Logger.With(zap.Int("max", max))
	log.Debug("Starte Gmail-Listenabfrage.")

	url := fmt.Sprintf("%s/users/me/messages?maxResults=%d&labelIds=INBOX", f.Config.GmailBaseURL, max)
	var listResp ListResponse
	if err := f.getJSON(ctx, url, &listResp); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(listResp.Messages))
	for _, m := range listResp.Messages {
		ids = append(ids, m.ID)
	}
	log.Debug("Gmail-Listenabfrage abgeschlossen", zap.Int("count", len(ids)))
	return ids, nil
}

// fetchMessage lädt eine einzelne Nachricht im Full-Format und mappt sie
// auf unser internes Modell.
func (f *Fetcher) fetchMessage(ctx context.Context, id string) (*models.InboundMessage, error) {
	url := fmt.Sprintf("%s/users/me/messages/%s?format=full", f.Config.GmailBaseURL, id)
	var msg Message
	if err := f.getJSON(ctx, url, &msg); err != nil {
		return nil, err
	}
	return mapMessageToModel(&msg), nil
}

// getJSON führt einen authentifizierten GET-Request aus und dekodiert die
// JSON-Antwort.
func (f *Fetcher) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+f.Config.GmailAccessToken)

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gmail request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapMessageToModel konvertiert eine Gmail-Nachricht in unser internes
// InboundMessage-Modell.
func mapMessageToModel(msg *Message) *models.InboundMessage {
	out := &models.InboundMessage{
		ID:      msg.ID,
		Snippet: msg.Snippet,
	}

	if ms, err := strconv.ParseInt(msg.InternalDate, 10, 64); err == nil {
		out.Date = ms / 1000
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			out.Subject = h.Value
		case "from":
			if m := fromRegex.FindStringSubmatch(h.Value); m != nil {
				out.FromName = strings.TrimSpace(m[1])
				out.FromEmail = m[2]
			} else {
				out.FromEmail = strings.TrimSpace(h.Value)
			}
		}
	}

	out.Body = extractPlainText(&msg.Payload)
	return out
}

// extractPlainText sucht rekursiv den ersten text/plain-Part und dekodiert
// ihn aus base64url.
func extractPlainText(p *Payload) string {
	if strings.HasPrefix(p.MimeType, "text/plain") && p.Body.Data != "" {
		if data, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(p.Body.Data); err == nil {
			return string(data)
		}
	}
	for i := range p.Parts {
		if text := extractPlainText(&p.Parts[i]); text != "" {
			return text
		}
	}
	return ""
}
