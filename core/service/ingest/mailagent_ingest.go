// Package ingest pulls the remote mailbox into the user's local index: a
// sequential page walk over the provider listing feeding a bounded worker
// pool that fetches message details in parallel.
package ingest

import (
	"context"
	"sync"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/in"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"

	"github.com/go-pkgz/pool"
	"github.com/rs/zerolog"
)

// Config tunes one ingest run. Zero values fall back to defaults.
type Config struct {
	FetchWorkers int   // parallel detail-fetch workers
	PageSize     int64 // listing page size
	FetchBatch   int   // message ids per detail-fetch call
}

func (c Config) normalized() Config {
	if c.FetchWorkers <= 0 {
		c.FetchWorkers = 4
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = 25
	}
	return c
}

// Ingester walks the provider listing and upserts fetched messages into the
// owning user's index.
type Ingester struct {
	registry out.StoreRegistry
	cfg      Config
	log      zerolog.Logger
}

var _ in.IngestService = (*Ingester)(nil)

func NewIngester(registry out.StoreRegistry, cfg Config, log zerolog.Logger) *Ingester {
	return &Ingester{
		registry: registry,
		cfg:      cfg.normalized(),
		log:      log.With().Str("component", "ingester").Logger(),
	}
}

// fetchSink collects worker output. Failed batches are counted, not retried;
// the next ingest run picks the messages up again.
type fetchSink struct {
	mu     sync.Mutex
	emails []*domain.EmailIndex
	failed int
}

// fetchWorker resolves one id batch against the provider.
type fetchWorker struct {
	client out.RemoteMailClient
	sink   *fetchSink
	log    zerolog.Logger
}

// Do implements pool.Worker.
func (w *fetchWorker) Do(ctx context.Context, ids []string) error {
	emails, err := w.client.GetBatch(ctx, ids)
	if err != nil {
		w.sink.mu.Lock()
		w.sink.failed += len(ids)
		w.sink.mu.Unlock()
		w.log.Warn().Err(err).Int("batch_size", len(ids)).Msg("detail fetch failed")
		return err
	}

	w.sink.mu.Lock()
	w.sink.emails = append(w.sink.emails, emails...)
	w.sink.mu.Unlock()
	return nil
}

// IngestEmails walks the listing for query, fetches details in parallel and
// bulk-upserts the result into the user's store. maxEmails <= 0 means no cap.
func (s *Ingester) IngestEmails(ctx context.Context, client out.RemoteMailClient, userID, query string, maxEmails int) (*in.IngestResult, error) {
	if client == nil {
		return nil, apperr.MissingField("remote client")
	}
	if userID == "" {
		return nil, apperr.UserIDMissing()
	}

	store, err := s.registry.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids, pages, err := s.collectIDs(ctx, client, query, maxEmails)
	if err != nil {
		return nil, err
	}
	result := &in.IngestResult{Pages: pages}
	if len(ids) == 0 {
		s.log.Info().Str("user_id", userID).Str("query", query).Msg("listing matched nothing")
		return result, nil
	}

	sink := &fetchSink{}
	worker := &fetchWorker{client: client, sink: sink, log: s.log}
	group := pool.New[[]string](s.cfg.FetchWorkers, worker).
		WithWorkerChanSize(s.cfg.FetchWorkers * 2).
		WithContinueOnError()
	if err := group.Go(ctx); err != nil {
		return nil, apperr.InternalWithError(err)
	}
	for _, batch := range chunkIDs(ids, s.cfg.FetchBatch) {
		group.Submit(batch)
	}
	if err := group.Close(ctx); err != nil {
		// Individual batch failures were already counted by the sink.
		s.log.Warn().Err(err).Msg("fetch pool closed with errors")
	}

	result.Fetched = len(sink.emails)
	if err := store.BulkUpsertEmailIndex(ctx, sink.emails, userID); err != nil {
		return result, err
	}
	result.Upserted = len(sink.emails)

	s.log.Info().
		Str("user_id", userID).
		Str("query", query).
		Int("pages", result.Pages).
		Int("fetched", result.Fetched).
		Int("upserted", result.Upserted).
		Int("failed", sink.failed).
		Msg("ingest finished")
	return result, nil
}

// collectIDs walks the listing sequentially. The page walk stays serial so
// provider page tokens are honored; only detail fetches fan out.
func (s *Ingester) collectIDs(ctx context.Context, client out.RemoteMailClient, query string, maxEmails int) ([]string, int, error) {
	var ids []string
	pages := 0
	token := ""

	for {
		page, err := client.ListPage(ctx, query, token, s.cfg.PageSize)
		if err != nil {
			return nil, pages, err
		}
		pages++

		for _, ref := range page.Messages {
			ids = append(ids, ref.ID)
			if maxEmails > 0 && len(ids) >= maxEmails {
				s.log.Debug().Int("max_emails", maxEmails).Msg("ingest cap reached")
				return ids, pages, nil
			}
		}

		if page.NextPageToken == "" {
			return ids, pages, nil
		}
		token = page.NextPageToken
	}
}

func chunkIDs(ids []string, size int) [][]string {
	if size <= 0 {
		size = len(ids)
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
