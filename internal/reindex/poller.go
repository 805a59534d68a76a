package reindex

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/casekit/exposer/internal/models"
	"github.com/casekit/exposer/internal/settings"
)

const pollBatchSize = 50

// Poller drains pending expose requests at a fixed interval and invokes the
// reindex service once per request. Interval and fan-out come from the
// settings snapshot each cycle so both can be tuned at runtime.
type Poller struct {
	db      *gorm.DB
	service *Service
}

// NewPoller constructs a request poller.
func NewPoller(db *gorm.DB, service *Service) *Poller {
	if db == nil || service == nil {
		return nil
	}
	return &Poller{db: db, service: service}
}

// Start launches the polling loop in a background goroutine.
func (p *Poller) Start(ctx context.Context) {
	if p == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go p.run(ctx)
	log.Info("expose request poller started")
}

func (p *Poller) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		interval := p.poll(ctx)
		if ctx.Err() != nil {
			return
		}
		if interval <= 0 {
			interval = time.Duration(settings.DefaultWorkerPollIntervalSeconds) * time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

// poll runs one cycle and returns the interval until the next.
func (p *Poller) poll(ctx context.Context) time.Duration {
	interval, maxConcurrency := p.resolvePollConfig()

	var pending []models.ExposeRequest
	errLoad := p.db.WithContext(ctx).
		Where("status = ?", models.RequestStatusPending).
		Order("id ASC").
		Limit(pollBatchSize).
		Find(&pending).Error
	if errLoad != nil {
		log.WithError(errLoad).Warn("reindex: load pending expose requests failed")
		return interval
	}
	if len(pending) == 0 {
		return interval
	}

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for i := range pending {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return interval
		}
		wg.Add(1)
		request := pending[i]
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			p.handle(ctx, &request)
		}()
	}
	wg.Wait()
	return interval
}

// handle processes one request and records its terminal status. FAILED is
// terminal; a retry needs a fresh request row.
func (p *Poller) handle(ctx context.Context, request *models.ExposeRequest) {
	status := models.RequestStatusDone
	if errReindex := p.service.Reindex(ctx, request.CaseInstanceID, request.EntityType); errReindex != nil {
		log.WithError(errReindex).Warnf("reindex: request %d for case %s failed", request.ID, request.CaseInstanceID)
		status = models.RequestStatusFailed
	}
	now := time.Now()
	errUpdate := p.db.WithContext(ctx).
		Model(&models.ExposeRequest{}).
		Where("id = ?", request.ID).
		Updates(map[string]any{"status": status, "processed_at": now}).Error
	if errUpdate != nil {
		log.WithError(errUpdate).Warnf("reindex: update request %d status failed", request.ID)
	}
}

// resolvePollConfig reads interval and fan-out from the settings snapshot.
func (p *Poller) resolvePollConfig() (time.Duration, int) {
	seconds := settings.IntValue(settings.WorkerPollIntervalSecondsKey, settings.DefaultWorkerPollIntervalSeconds)
	if seconds < 1 {
		seconds = settings.DefaultWorkerPollIntervalSeconds
	}
	concurrency := settings.IntValue(settings.WorkerMaxConcurrencyKey, settings.DefaultWorkerMaxConcurrency)
	if concurrency < 1 {
		concurrency = 1
	}
	return time.Duration(seconds) * time.Second, concurrency
}
