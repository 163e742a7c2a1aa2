package hub

import (
	"context"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rqzrqh/stackflow_hub/common"
	"github.com/rqzrqh/stackflow_hub/stacks"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type ChannelView struct {
	*common.Channel
	LastUpdated string `json:"lastUpdated,omitempty"`
}

type ChannelPage struct {
	Channels   []*ChannelView `json:"channels"`
	Total      int            `json:"total"`
	HasMore    bool           `json:"hasMore"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func lastUpdated(ch *common.Channel) string {
	if ch.UpdatedAt > 0 {
		return time.UnixMilli(ch.UpdatedAt).UTC().Format(time.RFC3339Nano)
	}
	// records written only by chain events carry no timestamp
	if n, ok := ch.Nonce.Uint64(); ok && n > 0 && n < 1<<40 {
		return time.Unix(int64(n), 0).UTC().Format(time.RFC3339Nano)
	}
	return ""
}

// Channels pages through the channels a principal takes part in. cursor is
// the offset returned as NextCursor by the previous page.
func (h *Hub) Channels(ctx context.Context, principal string, cursor string, limit int) (*ChannelPage, error) {
	if principal == "" {
		return nil, badRequest("principal", "principal address is required")
	}
	p, err := stacks.ParsePrincipal(principal)
	if err != nil {
		return nil, badRequest("principal", "%v", err)
	}
	principal = p.String()
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	start := 0
	if cursor != "" {
		if start, err = strconv.Atoi(cursor); err != nil || start < 0 {
			return nil, badRequest("cursor", "invalid cursor %q", cursor)
		}
	}

	keys, err := h.store.Keys(ctx, principal)
	if err != nil {
		return nil, err
	}

	page := &ChannelPage{Channels: []*ChannelView{}, Total: len(keys)}
	if start >= len(keys) {
		return page, nil
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}
	ids := keys[start:end]

	views := make([]*ChannelView, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			ch, err := h.store.Get(gctx, id)
			if err != nil {
				return err
			}
			if ch != nil {
				views[i] = &ChannelView{Channel: ch, LastUpdated: lastUpdated(ch)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, v := range views {
		if v != nil {
			page.Channels = append(page.Channels, v)
		}
	}
	page.HasMore = end < len(keys)
	if page.HasMore {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
