// Package provider implements mail provider adapters.
package provider

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"mailagent_server/core/domain"
	"mailagent_server/core/port/out"
	"mailagent_server/pkg/apperr"
	"mailagent_server/pkg/httputil"
	"mailagent_server/pkg/metrics"
	"mailagent_server/pkg/ratelimit"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// =============================================================================
// Gmail Metadata Headers
// =============================================================================

// gmailMetadataHeaders lists the headers requested for index rows. Metadata
// format keeps responses small; bodies are never fetched.
var gmailMetadataHeaders = []string{
	"From", "To", "Cc", "Subject", "Date",
	"Content-Type",
	"List-Unsubscribe", // RFC 2369 - newsletter signal
	"Precedence",       // bulk, list, junk
}

// =============================================================================
// Gmail Provider
// =============================================================================

// GmailConfig holds Gmail OAuth and pacing configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	QPS          float64
}

// GmailProvider builds per-session Gmail clients sharing one circuit breaker
// and one request pacer, so every session observes the same API budget.
type GmailProvider struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
	pacer  *ratelimit.TokenBucket
	log    zerolog.Logger
}

// NewGmailProvider creates a provider for the configured OAuth application.
func NewGmailProvider(cfg *GmailConfig, log zerolog.Logger) *GmailProvider {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
		},
		Endpoint: google.Endpoint,
	}

	zlog := log.With().Str("component", "gmail_provider").Logger()

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zlog.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	burst := int(cfg.QPS)
	if burst < 1 {
		burst = 1
	}

	return &GmailProvider{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		pacer:  ratelimit.NewTokenBucket(cfg.QPS, burst),
		log:    zlog,
	}
}

// AuthURL returns the OAuth authorization URL for the given state.
func (p *GmailProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange exchanges an authorization code for a token.
func (p *GmailProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.DefaultClient())
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, wrapError(err, "exchange token")
	}
	return token, nil
}

// ClientFor binds a token to a mail client. The underlying token source
// refreshes access tokens transparently.
func (p *GmailProvider) ClientFor(token *oauth2.Token) *GmailClient {
	return &GmailClient{provider: p, token: token}
}

// BreakerState returns the current circuit breaker state for monitoring.
func (p *GmailProvider) BreakerState() string {
	return p.cb.State().String()
}

// =============================================================================
// Gmail Client
// =============================================================================

// GmailClient implements out.RemoteMailClient for a single session token.
type GmailClient struct {
	provider *GmailProvider
	token    *oauth2.Token
}

var _ out.RemoteMailClient = (*GmailClient)(nil)

// ListPage lists one page of message references matching the query.
func (c *GmailClient) ListPage(ctx context.Context, query, pageToken string, maxResults int64) (*out.RemoteListPage, error) {
	if err := c.provider.pacer.Wait(ctx); err != nil {
		return nil, err
	}

	svc, err := c.getService(ctx)
	if err != nil {
		return nil, wrapError(err, "create service")
	}

	if maxResults <= 0 {
		maxResults = 100
	}

	req := svc.Users.Messages.List("me").MaxResults(maxResults)
	if query != "" {
		req = req.Q(query)
	}
	if pageToken != "" {
		req = req.PageToken(pageToken)
	}

	start := time.Now()
	var resp *gmail.ListMessagesResponse
	cbErr := c.executeWithCircuitBreaker("ListPage", func() error {
		var apiErr error
		resp, apiErr = req.Context(ctx).Do()
		return apiErr
	})
	metrics.RecordLatency("gmail.list", time.Since(start))
	if cbErr != nil {
		return nil, wrapError(cbErr, "list messages")
	}

	page := &out.RemoteListPage{
		Messages:           make([]out.RemoteMessageRef, 0, len(resp.Messages)),
		NextPageToken:      resp.NextPageToken,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}
	for _, m := range resp.Messages {
		page.Messages = append(page.Messages, out.RemoteMessageRef{ID: m.Id, ThreadID: m.ThreadId})
	}
	return page, nil
}

// GetBatch fetches message metadata for the given IDs in parallel.
// Individual failures are skipped; an error is returned only when the whole
// batch produced nothing.
func (c *GmailClient) GetBatch(ctx context.Context, ids []string) ([]*domain.EmailIndex, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	svc, err := c.getService(ctx)
	if err != nil {
		return nil, wrapError(err, "create service")
	}

	const maxConcurrency = 10
	const perMessageTimeout = 15 * time.Second

	type result struct {
		index int
		email *domain.EmailIndex
		err   error
	}

	results := make(chan result, len(ids))
	sem := make(chan struct{}, maxConcurrency)

	for i, id := range ids {
		go func(idx int, msgID string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			if err := c.provider.pacer.Wait(ctx); err != nil {
				results <- result{index: idx, err: err}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			start := time.Now()
			msg, err := svc.Users.Messages.Get("me", msgID).
				Format("metadata").
				MetadataHeaders(gmailMetadataHeaders...).
				Context(msgCtx).Do()
			metrics.RecordLatency("gmail.get", time.Since(start))
			if err != nil {
				results <- result{index: idx, err: err}
				return
			}
			results <- result{index: idx, email: convertMessage(msg)}
		}(i, id)
	}

	emails := make([]*domain.EmailIndex, len(ids))
	var firstErr error
	collected := 0
	for collected < len(ids) {
		select {
		case r := <-results:
			collected++
			if r.err != nil {
				if firstErr == nil {
					firstErr = r.err
				}
				continue
			}
			emails[r.index] = r.email
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Keep request order, drop failures.
	fetched := make([]*domain.EmailIndex, 0, len(ids))
	for _, e := range emails {
		if e != nil {
			fetched = append(fetched, e)
		}
	}
	if len(fetched) == 0 && firstErr != nil {
		return nil, wrapError(firstErr, "get messages")
	}
	if dropped := len(ids) - len(fetched); dropped > 0 {
		c.provider.log.Warn().Int("dropped", dropped).Int("requested", len(ids)).
			Msg("some messages failed to fetch")
	}
	return fetched, nil
}

// BatchModify adds and removes labels on up to 1000 messages in one call.
func (c *GmailClient) BatchModify(ctx context.Context, ids, addLabels, removeLabels []string) error {
	if len(ids) == 0 {
		return nil
	}

	if err := c.provider.pacer.Wait(ctx); err != nil {
		return err
	}

	svc, err := c.getService(ctx)
	if err != nil {
		return wrapError(err, "create service")
	}

	batchReq := &gmail.BatchModifyMessagesRequest{
		Ids:            ids,
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}

	start := time.Now()
	cbErr := c.executeWithCircuitBreaker("BatchModify", func() error {
		return svc.Users.Messages.BatchModify("me", batchReq).Context(ctx).Do()
	})
	metrics.RecordLatency("gmail.batch_modify", time.Since(start))
	if cbErr != nil {
		return wrapError(cbErr, "batch modify")
	}
	return nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (c *GmailClient) getService(ctx context.Context) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	// Token refresh rides the oauth2 transport; the pooled mail transport
	// underneath is shared across every session.
	base := httputil.MailAPIClient()
	authed := &http.Client{
		Transport: &oauth2.Transport{
			Source: c.provider.config.TokenSource(ctx, c.token),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}

	return gmail.NewService(ctx, option.WithHTTPClient(authed))
}

// executeWithCircuitBreaker wraps an API call with circuit breaker protection
// so sustained Gmail outages fail fast instead of piling up requests.
func (c *GmailClient) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := c.provider.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					// Server-side trouble should trip the circuit breaker.
					return nil, err
				case 400, 401, 403, 404:
					// Client errors must not open the circuit.
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}

	if err != nil {
		c.provider.log.Error().
			Str("operation", operation).
			Str("breaker_state", c.provider.cb.State().String()).
			Err(err).
			Msg("gmail api call failed")
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// wrapError maps Gmail API failures onto application error codes.
func wrapError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 400:
			return apperr.BadRequest("invalid remote request: " + apiErr.Message).WithError(err)
		case 401:
			return apperr.RemotePermanent("Remote authentication expired", err)
		case 403:
			if strings.Contains(strings.ToLower(apiErr.Message), "rate limit") {
				return apperr.RemoteTransient(operation, err)
			}
			return apperr.RemotePermanent("Insufficient Gmail permissions", err)
		case 404:
			return apperr.NotFound("remote message").WithError(err)
		case 429:
			return apperr.RemoteTransient(operation, err)
		}
		if apiErr.Code >= 500 {
			return apperr.RemoteTransient(operation, err)
		}
	}
	return apperr.RemoteTransient(operation, err)
}

// convertMessage maps a Gmail metadata response to an index row.
// UserID is assigned by the caller that owns the session.
func convertMessage(msg *gmail.Message) *domain.EmailIndex {
	email := &domain.EmailIndex{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Labels:       msg.LabelIds,
		SizeEstimate: msg.SizeEstimate,
		Snippet:      msg.Snippet,
		Date:         msg.InternalDate,
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				email.Subject = h.Value
			case "From":
				email.Sender = parseAddress(h.Value)
			case "To", "Cc":
				email.Recipients = append(email.Recipients, parseAddressList(h.Value)...)
			case "Date":
				if email.Date == 0 {
					if t, err := mail.ParseDate(h.Value); err == nil {
						email.Date = t.UnixMilli()
					}
				}
			case "Content-Type":
				// Metadata format excludes MIME parts, so multipart/mixed is
				// the attachment signal available without a second fetch.
				if strings.Contains(strings.ToLower(h.Value), "multipart/mixed") {
					email.HasAttachments = true
				}
			}
		}
	}

	if email.Date > 0 {
		email.Year = time.UnixMilli(email.Date).UTC().Year()
	}
	return email
}

func parseAddress(value string) string {
	if addr, err := mail.ParseAddress(value); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(value)
}

func parseAddressList(value string) []string {
	addrs, err := mail.ParseAddressList(value)
	if err != nil {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}

	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
