// Package batch turns the separately delivered items of one media group into a single
// decision panel.
//
// Deliveries of one group may run concurrently on different instances. They share nothing
// but the key-value store, and the panel sentinel's atomic set-if-absent decides which
// delivery sends the panel.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"mediarelay/pkg/chat"
	"mediarelay/pkg/kv"
	"mediarelay/pkg/media"
	"mediarelay/pkg/panel"
)

// ErrExpired means the coordination state of a panel is gone.
var ErrExpired = errors.New("batch task expired")

const (
	DefaultTTL = time.Hour

	pendingPanel = "pending"
)

// Key prefixes cleared by Reset.
const (
	batchPrefix = "batch:"
	mapPrefix   = "map:"
)

func itemPrefix(group string) string {
	return batchPrefix + group + ":file:"
}

// Item keys sort in message order because message ids are zero-padded.
func itemKey(group string, messageID int) string {
	return fmt.Sprintf("%s%012d", itemPrefix(group), messageID)
}

func panelKey(group string) string {
	return batchPrefix + group + ":panel"
}

func mapKey(ref chat.MessageRef) string {
	return mapPrefix + strconv.FormatInt(ref.ChatID, 10) + ":" + strconv.Itoa(ref.MessageID)
}

// Options tunes a Coordinator.
type Options struct {
	TTL       time.Duration
	JitterMin time.Duration
	JitterMax time.Duration
}

// Coordinator accumulates group items and elects the delivery that sends the panel.
type Coordinator struct {
	store     kv.Store
	messenger chat.Messenger
	ttl       time.Duration
	jitterMin time.Duration
	jitterMax time.Duration
	log       *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	random func(n int64) int64
}

func New(store kv.Store, messenger chat.Messenger, opts Options, log *slog.Logger) *Coordinator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.JitterMax < opts.JitterMin {
		opts.JitterMax = opts.JitterMin
	}
	if log == nil {
		log = slog.Default()
	}

	return &Coordinator{
		store:     store,
		messenger: messenger,
		ttl:       opts.TTL,
		jitterMin: opts.JitterMin,
		jitterMax: opts.JitterMax,
		log:       log.With("component", "batch.coordinator"),
		sleep:     sleepContext,
		random:    rand.Int64N,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) jitter() time.Duration {
	span := int64(c.jitterMax - c.jitterMin)
	if span <= 0 {
		return c.jitterMin
	}
	return c.jitterMin + time.Duration(c.random(span))
}

// Delivery is one item of a media group.
type Delivery struct {
	ChatID    int64
	MessageID int
	GroupID   string
	Ref       media.Ref
}

// Accept records the item and, if this delivery wins the panel sentinel, sends the mode
// panel as a reply. It reports whether this delivery created the panel.
func (c *Coordinator) Accept(ctx context.Context, d Delivery) (bool, error) {
	log := c.log.With("group", d.GroupID, "message_id", d.MessageID)

	payload, err := json.Marshal(d.Ref)
	if err != nil {
		return false, fmt.Errorf("encode item: %w", err)
	}
	if err := c.store.Put(ctx, itemKey(d.GroupID, d.MessageID), string(payload), c.ttl); err != nil {
		return false, fmt.Errorf("store item: %w", err)
	}

	if err := c.sleep(ctx, c.jitter()); err != nil {
		return false, err
	}

	claimed, err := c.store.PutIfAbsent(ctx, panelKey(d.GroupID), pendingPanel, c.ttl)
	if err != nil {
		log.WarnContext(ctx, "Panel claim failed, leaving panel to another delivery", "error", err)
		return false, nil
	}
	if !claimed {
		log.DebugContext(ctx, "Panel already claimed")
		return false, nil
	}

	panelID, err := c.messenger.SendText(ctx, d.ChatID, chat.Text{
		Body:     panel.BatchPrompt,
		Keyboard: panel.ModeChoice(),
		ReplyTo:  d.MessageID,
	})
	if err != nil {
		if delErr := c.store.Delete(ctx, panelKey(d.GroupID)); delErr != nil {
			log.WarnContext(ctx, "Failed to release panel claim", "error", delErr)
		}
		return false, fmt.Errorf("send group panel: %w", err)
	}

	ref := chat.MessageRef{ChatID: d.ChatID, MessageID: panelID}
	if err := c.store.Put(ctx, mapKey(ref), d.GroupID, c.ttl); err != nil {
		return true, fmt.Errorf("map panel to group: %w", err)
	}
	if err := c.store.Put(ctx, panelKey(d.GroupID), strconv.Itoa(panelID), c.ttl); err != nil {
		log.WarnContext(ctx, "Failed to record panel id", "error", err)
	}

	log.InfoContext(ctx, "Created group panel", "panel_id", panelID)
	return true, nil
}

// Resolve maps a panel message to its group.
func (c *Coordinator) Resolve(ctx context.Context, ref chat.MessageRef) (string, error) {
	group, ok, err := c.store.Get(ctx, mapKey(ref))
	if err != nil {
		return "", fmt.Errorf("resolve panel: %w", err)
	}
	if !ok {
		return "", ErrExpired
	}
	return group, nil
}

// Items returns every item accumulated for group so far, in message order.
func (c *Coordinator) Items(ctx context.Context, group string) ([]media.Ref, error) {
	keys, err := kv.ListAll(ctx, c.store, itemPrefix(group))
	if err != nil {
		return nil, err
	}
	slices.Sort(keys)

	refs := make([]media.Ref, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := c.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load item: %w", err)
		}
		if !ok {
			continue
		}

		var ref media.Ref
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			c.log.WarnContext(ctx, "Skipping unreadable item", "key", key, "error", err)
			continue
		}
		refs = append(refs, ref)
	}

	return refs, nil
}

// Forget drops the coordination state behind a panel. Expired panels are not an error.
func (c *Coordinator) Forget(ctx context.Context, ref chat.MessageRef) error {
	group, err := c.Resolve(ctx, ref)
	if errors.Is(err, ErrExpired) {
		return nil
	}
	if err != nil {
		return err
	}

	if _, err := kv.Clear(ctx, c.store, itemPrefix(group)); err != nil {
		return err
	}
	if err := c.store.Delete(ctx, panelKey(group)); err != nil {
		return fmt.Errorf("delete panel claim: %w", err)
	}
	if err := c.store.Delete(ctx, mapKey(ref)); err != nil {
		return fmt.Errorf("delete panel mapping: %w", err)
	}
	return nil
}

// Reset deletes every coordination key and returns how many were removed.
func (c *Coordinator) Reset(ctx context.Context) (int, error) {
	total := 0
	for _, prefix := range []string{batchPrefix, mapPrefix} {
		n, err := kv.Clear(ctx, c.store, prefix)
		total += n
		if err != nil {
			return total, err
		}
	}

	c.log.InfoContext(ctx, "Reset coordination state", "deleted", total)
	return total, nil
}
