package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/outreach-pipeline-go/internal/constants"
	"github.com/kapu/outreach-pipeline-go/internal/domain"
	"github.com/kapu/outreach-pipeline-go/internal/metrics"
	"github.com/kapu/outreach-pipeline-go/internal/progress"
	"github.com/kapu/outreach-pipeline-go/internal/util"
	"github.com/kapu/outreach-pipeline-go/pkg/errors"
)

// Request starts a scrape of one import.
type Request struct {
	ImportID   string            `json:"importId" validate:"required"`
	Plan       domain.ScrapePlan `json:"plan"`
	VideoCount int               `json:"videoCount,omitempty" validate:"omitempty,min=1"`
	Refresh    bool              `json:"refresh,omitempty"`
}

type OrchestratorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	MaxVideoCount    int
	ExploreLinkPages bool
}

// Orchestrator drives the scraping provider for an import and persists
// results influencer by influencer.
type Orchestrator struct {
	provider    Provider
	imports     ImportStore
	influencers InfluencerStore
	explorer    LinkExplorer
	notifier    Notifier
	progress    ProgressOpener
	cfg         OrchestratorConfig
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active map[string]struct{}
	wg     sync.WaitGroup
}

func NewOrchestrator(
	provider Provider,
	imports ImportStore,
	influencers InfluencerStore,
	explorer LinkExplorer,
	notifier Notifier,
	opener ProgressOpener,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 || cfg.BatchSize > constants.ScrapeConfig.BatchSize {
		cfg.BatchSize = constants.ScrapeConfig.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = constants.ScrapeConfig.PollInterval
	}
	if cfg.MaxVideoCount <= 0 {
		cfg.MaxVideoCount = constants.ScrapeConfig.MaxVideoCount
	}
	return &Orchestrator{
		provider:    provider,
		imports:     imports,
		influencers: influencers,
		explorer:    explorer,
		notifier:    notifier,
		progress:    opener,
		cfg:         cfg,
		logger:      logger,
		sleep:       sleepContext,
		active:      make(map[string]struct{}),
	}
}

// Start validates the request and runs the scrape in the background,
// detached from ctx. It returns the progress channel name.
func (o *Orchestrator) Start(ctx context.Context, req Request) (string, error) {
	imp, err := o.prepare(ctx, req)
	if err != nil {
		return "", err
	}

	channel := progress.ScrapeChannel(imp.ID)
	emitter := o.progress.Open(channel)
	bg := context.WithoutCancel(ctx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer emitter.Close()
		_ = o.execute(bg, imp, req, emitter)
	}()
	return channel, nil
}

// RunScrape runs a scrape synchronously, pushing events to emitter.
func (o *Orchestrator) RunScrape(ctx context.Context, req Request, emitter progress.Emitter) error {
	imp, err := o.prepare(ctx, req)
	if err != nil {
		return err
	}
	return o.execute(ctx, imp, req, emitter)
}

// Wait blocks until every background scrape has finished.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) prepare(ctx context.Context, req Request) (*domain.Import, error) {
	if req.ImportID == "" {
		return nil, errors.NewValidationError("importId is required", "importId", req.ImportID)
	}
	if len(req.Plan.All()) == 0 {
		return nil, errors.NewValidationError("usernames are required", "plan", nil)
	}

	imp, err := o.imports.GetImport(ctx, req.ImportID)
	if err != nil {
		return nil, fmt.Errorf("failed to load import: %w", err)
	}
	if imp == nil {
		return nil, errors.NewNotFoundError("import", req.ImportID)
	}
	if !imp.Status.CanStartScrape() {
		return nil, errors.NewConflictError(
			fmt.Sprintf("import is %s; scrape can start only from PENDING or DRAFT", imp.Status),
			imp.Status.String(),
		)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.active[imp.ID]; busy {
		return nil, errors.NewConflictError("a scrape is already running for this import", domain.ImportStatusProcessing.String())
	}
	o.active[imp.ID] = struct{}{}
	return imp, nil
}

func (o *Orchestrator) release(importID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, importID)
}

func (o *Orchestrator) execute(ctx context.Context, imp *domain.Import, req Request, emitter progress.Emitter) (err error) {
	defer o.release(imp.ID)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			o.fail(ctx, imp, err, emitter)
		}
	}()

	return o.scrape(ctx, imp, req, emitter)
}

func (o *Orchestrator) scrape(ctx context.Context, imp *domain.Import, req Request, emitter progress.Emitter) error {
	plan := NormalizePlan(req.Plan)
	videoCount := o.resolveVideoCount(req.VideoCount, imp.VideoCount)

	if err := o.imports.UpdateImportStatus(ctx, imp.ID, domain.ImportStatusProcessing, nil); err != nil {
		return fmt.Errorf("failed to mark import PROCESSING: %w", err)
	}

	linked := 0
	if req.Refresh {
		all := plan.All()
		purged, err := o.influencers.PurgeUsernames(ctx, all)
		if err != nil {
			return fmt.Errorf("failed to purge prior data: %w", err)
		}
		o.logger.Info("Prior scrape data purged", zap.String("import_id", imp.ID), zap.Int("influencers", purged))
		plan = domain.ScrapePlan{ToScrape: all}
	} else if len(plan.Skipped) > 0 {
		n, err := o.influencers.LinkUsernames(ctx, imp.ID, imp.SourceFilename, plan.Skipped)
		if err != nil {
			return fmt.Errorf("failed to link skipped influencers: %w", err)
		}
		linked = n
	}

	modes := make(map[string]VideoMode, len(plan.ToScrape)+len(plan.ToRescrape))
	for _, u := range plan.ToScrape {
		modes[u] = VideoModeReplace
	}
	for _, u := range plan.ToRescrape {
		modes[u] = VideoModeAppend
	}

	work := plan.Work()
	total := len(work)
	processed, persisted := 0, 0

	o.logger.Info("Scrape started",
		zap.String("import_id", imp.ID),
		zap.Int("to_scrape", len(plan.ToScrape)),
		zap.Int("to_rescrape", len(plan.ToRescrape)),
		zap.Int("skipped", len(plan.Skipped)),
		zap.Int("video_count", videoCount),
		zap.Bool("refresh", req.Refresh),
	)

	for start := 0; start < total; start += o.cfg.BatchSize {
		end := util.Min(start+o.cfg.BatchSize, total)
		batch := work[start:end]

		profiles, err := o.scrapeBatch(ctx, batch, videoCount)
		if err != nil {
			return err
		}

		for _, username := range batch {
			processed++
			p, ok := profiles[username]
			if !ok {
				o.logger.Warn("Provider returned no data for username",
					zap.String("import_id", imp.ID),
					zap.String("username", username),
				)
				emitter.Push(domain.NewProgressEvent(processed, total, username))
				continue
			}

			inf := p.ToInfluencer(imp.ID, imp.SourceFilename)
			o.exploreLinks(ctx, inf)

			if err := o.influencers.SaveScraped(ctx, inf, modes[username], videoCount); err != nil {
				return fmt.Errorf("failed to persist %s: %w", username, err)
			}
			persisted++
			metrics.Metrics.ScrapedInfluencers.Inc()
			emitter.Push(domain.NewProgressEvent(processed, total, username))
		}

		if err := o.imports.SetProcessedCount(ctx, imp.ID, persisted+linked); err != nil {
			return fmt.Errorf("failed to update processed count: %w", err)
		}
	}

	if total == 0 {
		if err := o.imports.SetProcessedCount(ctx, imp.ID, linked); err != nil {
			return fmt.Errorf("failed to update processed count: %w", err)
		}
	}
	if err := o.imports.UpdateImportStatus(ctx, imp.ID, domain.ImportStatusDraft, nil); err != nil {
		return fmt.Errorf("failed to mark import DRAFT: %w", err)
	}

	metrics.Metrics.RunsTotal.WithLabelValues("scrape", domain.ImportStatusDraft.String()).Inc()
	emitter.Push(domain.NewCompleteEvent(total))

	o.logger.Info("Scrape completed",
		zap.String("import_id", imp.ID),
		zap.Int("persisted", persisted),
		zap.Int("linked", linked),
		zap.Int("total", total),
	)

	o.notify(ctx, domain.Notification{
		Type:     domain.NotificationScrape,
		Status:   domain.NotificationSuccess,
		Title:    "Scrape completed",
		Message:  fmt.Sprintf("%s: %d influencers scraped, %d reused", imp.SourceFilename, persisted, linked),
		ImportID: &imp.ID,
	})
	return nil
}

// scrapeBatch runs one provider job and returns merged profiles of the
// batch's usernames. Rows for usernames outside the batch are ignored.
func (o *Orchestrator) scrapeBatch(ctx context.Context, batch []string, videoCount int) (map[string]*Profile, error) {
	jobID, err := o.provider.Submit(ctx, batch, videoCount)
	if err != nil {
		metrics.Metrics.ScrapeBatches.WithLabelValues("SUBMIT_ERROR").Inc()
		return nil, err
	}

	for {
		if err := o.sleep(ctx, o.cfg.PollInterval); err != nil {
			return nil, errors.NewProviderError("scrape polling cancelled", providerName, jobID, "", err)
		}
		status, err := o.provider.Poll(ctx, jobID)
		if err != nil {
			metrics.Metrics.ScrapeBatches.WithLabelValues("POLL_ERROR").Inc()
			return nil, err
		}
		if !status.IsTerminal() {
			continue
		}
		metrics.Metrics.ScrapeBatches.WithLabelValues(status.String()).Inc()
		if status != JobStatusSucceeded {
			return nil, errors.NewProviderError(fmt.Sprintf("Apify run %s", status), providerName, jobID, status.String(), nil)
		}
		break
	}

	items, err := o.provider.Fetch(ctx, jobID)
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(batch))
	for _, u := range batch {
		wanted[u] = struct{}{}
	}
	out := make(map[string]*Profile, len(batch))
	for _, p := range Normalize(items) {
		if _, ok := wanted[p.Username]; ok {
			out[p.Username] = p
		}
	}

	o.logger.Debug("Scrape batch fetched",
		zap.String("job_id", jobID),
		zap.Int("usernames", len(batch)),
		zap.Int("items", len(items)),
		zap.Int("profiles", len(out)),
	)
	return out, nil
}

func (o *Orchestrator) exploreLinks(ctx context.Context, inf *domain.Influencer) {
	if !o.cfg.ExploreLinkPages || o.explorer == nil || inf.BioLinkURL == nil || !IsAggregatorURL(*inf.BioLinkURL) {
		return
	}
	links, err := o.explorer.Explore(ctx, *inf.BioLinkURL)
	if err != nil {
		o.logger.Debug("Link page exploration failed",
			zap.String("username", inf.Username),
			zap.String("url", *inf.BioLinkURL),
			zap.Error(err),
		)
		return
	}
	inf.SocialLinks = MergeSocialLinks(inf.SocialLinks, links)
}

func (o *Orchestrator) resolveVideoCount(requested, stored int) int {
	n := requested
	if n <= 0 {
		n = stored
	}
	if n <= 0 {
		n = constants.ScrapeConfig.DefaultVideoCount
	}
	return util.Min(n, o.cfg.MaxVideoCount)
}

func (o *Orchestrator) fail(ctx context.Context, imp *domain.Import, cause error, emitter progress.Emitter) {
	msg := cause.Error()
	o.logger.Error("Scrape failed", zap.String("import_id", imp.ID), zap.Error(cause))

	if err := o.imports.UpdateImportStatus(ctx, imp.ID, domain.ImportStatusFailed, &msg); err != nil {
		o.logger.Error("Failed to mark import FAILED", zap.String("import_id", imp.ID), zap.Error(err))
	}
	metrics.Metrics.RunsTotal.WithLabelValues("scrape", domain.ImportStatusFailed.String()).Inc()
	emitter.Push(domain.NewErrorEvent(msg))

	o.notify(ctx, domain.Notification{
		Type:     domain.NotificationScrape,
		Status:   domain.NotificationError,
		Title:    "Scrape failed",
		Message:  msg,
		ImportID: &imp.ID,
	})
}

func (o *Orchestrator) notify(ctx context.Context, n domain.Notification) {
	if o.notifier != nil {
		o.notifier.Notify(ctx, n)
	}
}

// NormalizePlan normalizes usernames and makes the three sets disjoint;
// a username keeps the first set it appears in.
func NormalizePlan(p domain.ScrapePlan) domain.ScrapePlan {
	seen := make(map[string]struct{})
	clean := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, raw := range in {
			u := util.NormalizeUsername(raw)
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
		return out
	}
	return domain.ScrapePlan{
		ToScrape:   clean(p.ToScrape),
		ToRescrape: clean(p.ToRescrape),
		Skipped:    clean(p.Skipped),
	}
}
