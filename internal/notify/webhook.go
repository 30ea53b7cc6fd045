package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultTimeout     = 500 * time.Millisecond
	defaultConcurrency = 4
)

// Webhooks posts alerts as JSON to a fixed set of URLs. URLs may contain
// {user_id} and {kind}, which are replaced per alert.
type Webhooks struct {
	urls   []string
	client *http.Client
	log    *zap.Logger
}

// NewWebhooks returns a webhook notifier. URLs are validated per alert,
// after templating.
func NewWebhooks(urls []string, logger *zap.Logger) *Webhooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Webhooks{
		urls:   append([]string(nil), urls...),
		client: &http.Client{Timeout: defaultTimeout},
		log:    logger,
	}
}

// Notify blocks until every target has been tried. Delivery failures are
// logged and otherwise ignored.
func (w *Webhooks) Notify(ctx context.Context, a Alert) {
	targets := w.Targets(a)
	if len(targets) == 0 {
		return
	}
	body, err := json.Marshal(a)
	if err != nil {
		w.log.Warn("webhooks: failed to encode payload", zap.Error(err))
		return
	}

	workers := min(defaultConcurrency, len(targets))
	jobs := make(chan string)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for endpoint := range jobs {
				w.send(ctx, endpoint, body)
			}
		}()
	}
	for _, endpoint := range targets {
		jobs <- endpoint
	}
	close(jobs)
	wg.Wait()
}

// Targets templates, normalizes and de-dupes the configured URLs for a.
func (w *Webhooks) Targets(a Alert) []string {
	if len(w.urls) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(w.urls))
	var out []string
	for _, raw := range w.urls {
		templated := strings.TrimSpace(applyTemplate(strings.TrimSpace(raw), a))
		templated = strings.TrimRight(templated, "/")
		if templated == "" {
			continue
		}
		if !isValidWebhookURL(templated) {
			w.log.Debug("webhooks: skipping invalid url", zap.String("url", templated))
			continue
		}
		if _, ok := seen[templated]; ok {
			continue
		}
		seen[templated] = struct{}{}
		out = append(out, templated)
	}
	return out
}

func applyTemplate(raw string, a Alert) string {
	result := strings.ReplaceAll(raw, "{user_id}", url.PathEscape(a.UserID))
	return strings.ReplaceAll(result, "{kind}", url.PathEscape(a.Kind))
}

func isValidWebhookURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func (w *Webhooks) send(ctx context.Context, endpoint string, body []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		w.log.Warn("webhooks: build request failed", zap.String("url", endpoint), zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		w.log.Warn("webhooks: request failed", zap.String("url", endpoint), zap.Error(err))
		return
	}
	_ = resp.Body.Close()
}
