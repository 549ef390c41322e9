// Package storage is the client for the image-host HTTP API: upload, listing and random pick.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"mediarelay/pkg/config"
)

const userAgent = "TelegramBot/1.0"

// ErrNoFile is returned by Random when the scope holds no file.
var ErrNoFile = errors.New("no file in directory")

// Error is a failed storage call. Detail carries the provider's response body or reason.
type Error struct {
	Op     string
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("storage %s: %s", e.Op, e.Detail)
	}
	return fmt.Sprintf("storage %s: status %d: %s", e.Op, e.Status, e.Detail)
}

// Client talks to one storage deployment. The upload URL's origin is the base for the
// listing, random and file endpoints.
type Client struct {
	http        *resty.Client
	uploadURL   string
	origin      *url.URL
	accessURL   *url.URL
	uploadToken string
	listToken   string
	log         *slog.Logger
}

// New builds a client from cfg.
func New(cfg config.StorageConfig, log *slog.Logger) (*Client, error) {
	return NewWithClient(cfg, resty.New(), log)
}

// NewWithClient builds a client on an existing resty client.
func NewWithClient(cfg config.StorageConfig, http *resty.Client, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	upload, err := url.Parse(cfg.UploadURL)
	if err != nil || upload.Scheme == "" || upload.Host == "" {
		return nil, fmt.Errorf("invalid upload url %q", cfg.UploadURL)
	}

	var access *url.URL
	if strings.TrimSpace(cfg.AccessURL) != "" {
		access, err = url.Parse(cfg.AccessURL)
		if err != nil || access.Host == "" {
			return nil, fmt.Errorf("invalid access url %q", cfg.AccessURL)
		}
	}

	if timeout := cfg.RequestTimeout(); timeout > 0 {
		http.SetTimeout(timeout)
	}
	http.SetHeader("User-Agent", userAgent)

	return &Client{
		http:        http,
		uploadURL:   cfg.UploadURL,
		origin:      &url.URL{Scheme: upload.Scheme, Host: upload.Host},
		accessURL:   access,
		uploadToken: cfg.UploadToken,
		listToken:   cfg.ListToken,
		log:         log.With("component", "storage.client"),
	}, nil
}

// Origin is the scheme and host of the storage deployment.
func (c *Client) Origin() string {
	return c.origin.String()
}

// OriginURL is the canonical file URL for a stored path.
func (c *Client) OriginURL(path string) string {
	clean := strings.TrimPrefix(path, "/")
	clean = strings.TrimPrefix(clean, "file/")
	return c.Origin() + "/file/" + clean
}

// AccessURL rewrites the scheme and host of origin to the configured public host. The path
// and query are kept.
func (c *Client) AccessURL(origin string) string {
	if c.accessURL == nil {
		return origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return origin
	}
	u.Scheme = c.accessURL.Scheme
	u.Host = c.accessURL.Host
	return u.String()
}

// Upload is one file relayed to the storage backend.
type Upload struct {
	Name        string
	ContentType string
	Directory   string
	// Channel is "provider" or "provider|subchannel".
	Channel string
	Body    io.Reader
}

// Result locates an uploaded file.
type Result struct {
	OriginURL string
	AccessURL string
}

// SplitChannel splits a compound channel code into provider and subchannel.
func SplitChannel(code string) (string, string) {
	if code == "" {
		return "telegram", ""
	}
	provider, sub, _ := strings.Cut(code, "|")
	return provider, sub
}

func (c *Client) Upload(ctx context.Context, up Upload) (Result, error) {
	params := map[string]string{}
	if c.uploadToken != "" {
		params["authCode"] = c.uploadToken
	}
	if up.Directory != "" {
		params["uploadFolder"] = up.Directory
	}
	provider, sub := SplitChannel(up.Channel)
	params["uploadChannel"] = provider
	if sub != "" {
		params["channelName"] = sub
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetMultipartField("file", up.Name, up.ContentType, up.Body).
		Post(c.uploadURL)
	if err != nil {
		return Result{}, &Error{Op: "upload", Detail: err.Error()}
	}
	if resp.IsError() {
		return Result{}, &Error{Op: "upload", Status: resp.StatusCode(), Detail: truncate(resp.String())}
	}

	var entries []struct {
		Src string `json:"src"`
	}
	if err := json.Unmarshal(resp.Body(), &entries); err != nil || len(entries) == 0 || entries[0].Src == "" {
		return Result{}, &Error{Op: "upload", Status: resp.StatusCode(), Detail: truncate(resp.String())}
	}

	origin := c.OriginURL(entries[0].Src)
	c.log.Debug("Uploaded file", "name", up.Name, "directory", up.Directory, "channel", up.Channel, "origin", origin)

	return Result{OriginURL: origin, AccessURL: c.AccessURL(origin)}, nil
}

// File is one entry of a directory listing.
type File struct {
	Name     string         `json:"name"`
	Size     float64        `json:"size"`
	Channel  string         `json:"channel"`
	Metadata map[string]any `json:"metadata"`
}

// Listing is one page of a directory listing.
type Listing struct {
	Files      []File `json:"files"`
	TotalCount int    `json:"totalCount"`
}

// SizeBytes prefers FileSizeBytes, then FileSize in megabytes, then the entry size.
func (f File) SizeBytes() float64 {
	if v, ok := metaNumber(f.Metadata, "FileSizeBytes"); ok {
		return v
	}
	if v, ok := metaNumber(f.Metadata, "FileSize"); ok {
		return v * 1024 * 1024
	}
	return f.Size
}

// Directory is the stored folder from metadata, or "UNKNOWN".
func (f File) Directory() string {
	if v := metaString(f.Metadata, "Directory"); v != "" {
		return v
	}
	if v := metaString(f.Metadata, "Folder"); v != "" {
		return v + "/"
	}
	return "UNKNOWN"
}

// ChannelCode is the raw channel the file was stored through.
func (f File) ChannelCode() string {
	for _, key := range []string{"Channel", "channel"} {
		if v := metaString(f.Metadata, key); v != "" {
			return v
		}
	}
	if f.Channel != "" {
		return f.Channel
	}
	return "telegram"
}

// Timestamp is the upload time, zero when unknown.
func (f File) Timestamp() time.Time {
	for _, key := range []string{"TimeStamp", "timestamp"} {
		if ms, ok := metaNumber(f.Metadata, key); ok && ms > 0 {
			return time.UnixMilli(int64(ms))
		}
	}
	return time.Time{}
}

// BaseName is the last path element of Name.
func (f File) BaseName() string {
	name := f.Name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// List fetches count entries of dir starting at start.
func (c *Client) List(ctx context.Context, dir string, start int, count int) (Listing, error) {
	if c.listToken == "" {
		return Listing{}, &Error{Op: "list", Detail: "list token is not configured"}
	}

	var listing Listing
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.listToken).
		SetQueryParams(map[string]string{
			"dir":       dir,
			"start":     strconv.Itoa(start),
			"count":     strconv.Itoa(count),
			"recursive": "true",
		}).
		SetResult(&listing).
		Get(c.Origin() + "/api/manage/list")
	if err != nil {
		return Listing{}, &Error{Op: "list", Detail: err.Error()}
	}
	if resp.IsError() {
		return Listing{}, &Error{Op: "list", Status: resp.StatusCode(), Detail: truncate(resp.String())}
	}

	return listing, nil
}

type randomResponse struct {
	URL  string `json:"url"`
	Data struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Random picks one file URL from dir, or from everything when dir is empty. When the
// default pick is empty it retries once restricted to videos.
func (c *Client) Random(ctx context.Context, dir string) (string, error) {
	link, err := c.random(ctx, dir, false)
	if err != nil {
		return "", err
	}
	if link == "" {
		if link, err = c.random(ctx, dir, true); err != nil {
			return "", err
		}
	}
	if link == "" {
		return "", ErrNoFile
	}

	if strings.HasPrefix(link, "http") {
		return link, nil
	}
	if !strings.HasPrefix(link, "/") {
		link = "/" + link
	}
	return c.Origin() + link, nil
}

func (c *Client) random(ctx context.Context, dir string, video bool) (string, error) {
	params := map[string]string{"form": "json", "type": "url"}
	if dir != "" {
		params["dir"] = dir
	}
	if video {
		params["content"] = "video"
	}

	var out randomResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(c.Origin() + "/random")
	if err != nil {
		return "", &Error{Op: "random", Detail: err.Error()}
	}
	if resp.IsError() {
		c.log.Debug("Random pick returned an error status", "status", resp.StatusCode(), "dir", dir, "video", video)
		return "", nil
	}

	if out.URL != "" {
		return out.URL, nil
	}
	return out.Data.URL, nil
}

func metaNumber(meta map[string]any, key string) (float64, bool) {
	switch v := meta[key].(type) {
	case float64:
		return v, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	default:
		return 0, false
	}
}

func metaString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func truncate(s string) string {
	const limit = 300
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
