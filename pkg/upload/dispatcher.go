// Package upload fetches media and relays it to the storage backend.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"mediarelay/pkg/media"
	"mediarelay/pkg/storage"
)

const (
	browserUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"
	defaultMaxParallel = 4
)

// FileResolver turns a platform file id into a download URL.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Uploader stores one file.
type Uploader interface {
	Upload(ctx context.Context, up storage.Upload) (storage.Result, error)
}

// Dispatcher performs fetch-then-relay for media references. It never retries.
type Dispatcher struct {
	files       FileResolver
	store       Uploader
	http        *resty.Client
	maxParallel int
	log         *slog.Logger
}

// NewDispatcher creates a dispatcher. http downloads the media and maxParallel bounds
// concurrent items of one batch.
func NewDispatcher(files FileResolver, store Uploader, http *resty.Client, maxParallel int, log *slog.Logger) *Dispatcher {
	if http == nil {
		http = resty.New()
	}
	if maxParallel <= 0 {
		maxParallel = defaultMaxParallel
	}
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		files:       files,
		store:       store,
		http:        http,
		maxParallel: maxParallel,
		log:         log.With("component", "upload.dispatcher"),
	}
}

// Dispatch relays one reference into directory through channel.
func (d *Dispatcher) Dispatch(ctx context.Context, ref media.Ref, directory string, channel string) (storage.Result, error) {
	body, contentType, err := d.fetch(ctx, ref)
	if err != nil {
		return storage.Result{}, err
	}

	result, err := d.store.Upload(ctx, storage.Upload{
		Name:        ref.Name,
		ContentType: contentType,
		Directory:   directory,
		Channel:     channel,
		Body:        bytes.NewReader(body),
	})
	if err != nil {
		return storage.Result{}, err
	}

	d.log.InfoContext(ctx, "Relayed media", "name", ref.Name, "kind", ref.Kind, "directory", directory, "channel", channel)
	return result, nil
}

func (d *Dispatcher) fetch(ctx context.Context, ref media.Ref) ([]byte, string, error) {
	if ref.External {
		resp, err := d.http.R().
			SetContext(ctx).
			SetHeader("User-Agent", browserUserAgent).
			Get(ref.SourceID)
		if err != nil {
			return nil, "", fmt.Errorf("download external link: %w", err)
		}
		if resp.IsError() {
			return nil, "", fmt.Errorf("download external link: status %d", resp.StatusCode())
		}

		contentType := media.MimeType(ref.Name)
		if header := resp.Header().Get("Content-Type"); header != "" {
			if parsed, _, err := mime.ParseMediaType(header); err == nil {
				contentType = parsed
			}
		}
		return resp.Body(), contentType, nil
	}

	link, err := d.files.FileURL(ctx, ref.SourceID)
	if err != nil {
		return nil, "", fmt.Errorf("resolve platform file: %w", err)
	}

	resp, err := d.http.R().SetContext(ctx).Get(link)
	if err != nil {
		return nil, "", fmt.Errorf("download platform file: %w", err)
	}
	if resp.IsError() {
		return nil, "", fmt.Errorf("download platform file: status %d", resp.StatusCode())
	}

	// Platform content types are unreliable; the extension decides.
	return resp.Body(), media.MimeType(ref.Name), nil
}

// Outcome is the result of one batch item.
type Outcome struct {
	Ref    media.Ref
	Result storage.Result
	Err    error
}

// Report aggregates a batch. Items keep the input order.
type Report struct {
	Directory string
	Channel   string
	Items     []Outcome
	Succeeded int
	Failed    int
}

// DispatchBatch relays refs concurrently and returns once every item has resolved.
// Item failures are recorded in the report and never abort siblings.
func (d *Dispatcher) DispatchBatch(ctx context.Context, refs []media.Ref, directory string, channel string) Report {
	report := Report{
		Directory: directory,
		Channel:   channel,
		Items:     make([]Outcome, len(refs)),
	}

	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i, ref := range refs {
		g.Go(func() error {
			result, err := d.Dispatch(ctx, ref, directory, channel)
			report.Items[i] = Outcome{Ref: ref, Result: result, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range report.Items {
		if item.Err != nil {
			report.Failed++
			d.log.WarnContext(ctx, "Batch item failed", "name", item.Ref.Name, "error", item.Err)
			continue
		}
		report.Succeeded++
	}

	return report
}
