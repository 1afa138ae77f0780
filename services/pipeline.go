package services

import (
	"context"
	"sync"

	"trackdeck/config"
	"trackdeck/models"
	"trackdeck/providers"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PipelineResult fasst einen Pipeline-Lauf zusammen.
type PipelineResult struct {
	Fetched        int `json:"fetched"`
	Skipped        int `json:"skipped"`
	UpdatesCreated int `json:"updates_created"`
	Failed         int `json:"failed"`
}

// inboxItem koppelt eine Nachricht an ihren Herkunfts-Provider.
type inboxItem struct {
	message *models.InboundMessage
	source  string
}

// Pipeline orchestriert die Verarbeitung eingehender Nachrichten:
// Dedup-Gate -> Matcher -> Extraktion -> Vorschläge -> UpdateRecord ->
// Ledger-Eintrag. Items sind unabhängig und laufen mit begrenzter
// Parallelität; innerhalb eines Items ist die Kette sequenziell.
type Pipeline struct {
	Config    *config.Config
	DB        *gorm.DB
	Providers []providers.Provider
	Trackers  *TrackerService
	Matcher   *MatchService
	Extractor *Extractor
	Builder   *ProposalBuilder
	Ledger    *Ledger
	Logger    *zap.Logger
}

// Run führt einen kompletten Pipeline-Lauf für einen User aus. Bereits
// verarbeitete Source-IDs werden VOR Matching und Extraktion gefiltert,
// um wiederholte Modell-Kosten zu vermeiden; ein erneuter Lauf über
// dieselbe Inbox ist dadurch ein No-op.
func (p *Pipeline) Run(ctx context.Context, userID string) (*PipelineResult, error) {
	log := p.Logger.With(zap.String("user_id", userID))

	trackers, err := p.Trackers.ListActive(userID)
	if err != nil {
		return nil, err
	}
	if len(trackers) == 0 {
		log.Info("Keine aktiven Tracker, Pipeline-Lauf übersprungen.")
		return &PipelineResult{}, nil
	}
	trackerIndex := make(map[uint]*models.Tracker, len(trackers))
	for i := range trackers {
		trackerIndex[trackers[i].ID] = &trackers[i]
	}

	var items []inboxItem
	for _, provider := range p.Providers {
		messages, err := provider.Fetch(ctx, p.Config.InboxBatchSize)
		if err != nil {
			log.Error("Provider-Abruf fehlgeschlagen", zap.String("provider", provider.Name()), zap.Error(err))
			continue
		}
		for _, msg := range messages {
			items = append(items, inboxItem{message: msg, source: provider.Name()})
		}
	}

	result := &PipelineResult{Fetched: len(items)}

	// Dedup-Gate vor jeglichem Modell-Aufruf.
	var pending []inboxItem
	for _, item := range items {
		processed, err := p.Ledger.AlreadyProcessed(userID, item.message.ID)
		if err != nil {
			return nil, err
		}
		if processed {
			result.Skipped++
			continue
		}
		pending = append(pending, item)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, 5) // Limit auf 5 parallele Items

	for _, item := range pending {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(item inboxItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			created, err := p.processItem(ctx, userID, item, trackers, trackerIndex)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Fehler vor der Persistenz lassen das Item für den
				// nächsten Lauf offen; das Ledger bleibt unberührt.
				log.Error("Item-Verarbeitung fehlgeschlagen",
					zap.String("source_id", item.message.ID), zap.Error(err))
				result.Failed++
				return
			}
			if created {
				result.UpdatesCreated++
			}
		}(item)
	}

	wg.Wait()
	log.Info("Pipeline-Lauf abgeschlossen",
		zap.Int("fetched", result.Fetched),
		zap.Int("skipped", result.Skipped),
		zap.Int("updates_created", result.UpdatesCreated),
		zap.Int("failed", result.Failed))
	return result, nil
}

// processItem verarbeitet genau ein Source-Item: match -> extract ->
// build -> persist -> mark. Das Ledger wird erst NACH erfolgreicher
// Persistenz beschrieben.
func (p *Pipeline) processItem(ctx context.Context, userID string, item inboxItem, trackers []models.Tracker, trackerIndex map[uint]*models.Tracker) (bool, error) {
	msg := item.message
	text := msg.Subject + "\n\n" + msg.Text()

	matches := p.Matcher.MatchTrackers(text, trackers)
	if len(matches) == 0 {
		return false, p.Ledger.MarkProcessed(userID, msg.ID)
	}

	extracted, err := p.Extractor.Extract(ctx, text, trackerIndex, matches)
	if err != nil {
		return false, err
	}

	proposals, err := p.Builder.Build(trackerIndex, extracted)
	if err != nil {
		return false, err
	}
	if len(proposals) == 0 {
		return false, p.Ledger.MarkProcessed(userID, msg.ID)
	}

	record := &models.UpdateRecord{
		UserID:   userID,
		Source:   item.source,
		SourceID: msg.ID,
		Title:    msg.Subject,
		Summary:  msg.Snippet,
		Urgency:  urgencyFor(proposals),
	}
	if err := record.SetTrackerMatches(matches); err != nil {
		return false, err
	}
	if err := record.SetProposals(proposals); err != nil {
		return false, err
	}
	if err := p.DB.Create(record).Error; err != nil {
		return false, err
	}

	// Markieren ist der letzte Schritt; danach kann nichts mehr scheitern,
	// das den Record verlieren würde.
	if err := p.Ledger.MarkProcessed(userID, msg.ID); err != nil {
		return true, err
	}
	return true, nil
}

// RunAll führt die Pipeline für alle User mit aktiven Trackern aus
// (Cron-Einstieg). Fehler einzelner User brechen den Lauf nicht ab.
func (p *Pipeline) RunAll(ctx context.Context) (*PipelineResult, error) {
	var userIDs []string
	if err := p.DB.Model(&models.Tracker{}).
		Where("is_active = ?", true).
		Distinct().
		Pluck("user_id", &userIDs).Error; err != nil {
		return nil, err
	}

	total := &PipelineResult{}
	for _, userID := range userIDs {
		result, err := p.Run(ctx, userID)
		if err != nil {
			p.Logger.Error("Pipeline-Lauf für User fehlgeschlagen", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		total.Fetched += result.Fetched
		total.Skipped += result.Skipped
		total.UpdatesCreated += result.UpdatesCreated
		total.Failed += result.Failed
	}
	return total, nil
}

// urgencyFor leitet die Review-Dringlichkeit aus den Vorschlägen ab.
func urgencyFor(proposals []models.UpdateProposal) string {
	for _, proposal := range proposals {
		if proposal.HasHighConfidenceUpdates {
			return "high"
		}
	}
	return "normal"
}
