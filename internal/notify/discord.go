// Package notify announces pool deployments over Discord webhooks.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"voucherPools/internal/deploy"
)

const (
	embedColor     = 0x2ecc71
	maxDescription = 2048
)

// Embed is a Discord message embed.
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type payload struct {
	Embeds []Embed `json:"embeds"`
}

type Options struct {
	// PoolURL formats a link to the pool page; %s is the pool address.
	PoolURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Discord posts deployment embeds to every configured webhook.
type Discord struct {
	webhooks []string
	poolURL  string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

var _ deploy.Notifier = (*Discord)(nil)

func NewDiscord(webhooks []string, opts Options) *Discord {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	hooks := make([]string, 0, len(webhooks))
	for _, hook := range webhooks {
		if hook = strings.TrimSpace(hook); hook != "" {
			hooks = append(hooks, hook)
		}
	}
	return &Discord{
		webhooks: hooks,
		poolURL:  opts.PoolURL,
		client:   opts.HTTPClient,
		cb:       newCircuitBreaker("discord"),
		logger:   opts.Logger,
	}
}

// PoolDeployed posts one embed to each webhook concurrently and returns the
// first failure, if any.
func (d *Discord) PoolDeployed(ctx context.Context, dep deploy.Deployment) error {
	if len(d.webhooks) == 0 {
		return nil
	}
	body, err := json.Marshal(payload{Embeds: []Embed{d.embed(dep)}})
	if err != nil {
		return fmt.Errorf("marshal embed: %w", err)
	}

	eg := &errgroup.Group{}
	for i := range d.webhooks {
		hook := d.webhooks[i]
		eg.Go(func() error { return d.post(ctx, hook, body) })
	}
	return eg.Wait()
}

func (d *Discord) embed(dep deploy.Deployment) Embed {
	meta := dep.Metadata
	e := Embed{
		Title:       fmt.Sprintf("New pool: %s (%s)", meta.Name, meta.Symbol),
		Description: truncate(meta.Description, maxDescription),
		Color:       embedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Fields: []EmbedField{
			{Name: "Pool", Value: dep.Pool.Hex()},
			{Name: "Owner", Value: dep.Owner.Hex()},
		},
	}
	if d.poolURL != "" {
		e.URL = fmt.Sprintf(d.poolURL, dep.Pool.Hex())
	}
	if len(meta.Tags) > 0 {
		e.Fields = append(e.Fields, EmbedField{Name: "Tags", Value: strings.Join(meta.Tags, ", "), Inline: true})
	}
	if meta.BannerURL != "" {
		e.Image = &EmbedImage{URL: meta.BannerURL}
	}
	return e
}

func (d *Discord) post(ctx context.Context, hook string, body []byte) error {
	_, err := d.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("webhook responded %s", resp.Status)
		}
		return nil, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) {
		d.logger.Warn("discord circuit open, dropping notification")
	}
	return err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
