package resourcecache

import (
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Command is a control message sent to the controller by a page
type Command interface {
	commandType() string
}

type (
	// SkipWaiting activates an installed controller immediately
	SkipWaiting struct{}
	// GetVersion asks for the controller's version name
	GetVersion struct{}
	// ClearCache drops every cache, current tiers included
	ClearCache struct{}
	// CacheURLs fetches and stores URLs in the dynamic tier
	CacheURLs struct{ URLs []string }
)

func (SkipWaiting) commandType() string { return "SKIP_WAITING" }
func (GetVersion) commandType() string  { return "GET_VERSION" }
func (ClearCache) commandType() string  { return "CLEAR_CACHE" }
func (CacheURLs) commandType() string   { return "CACHE_URLS" }

// Reply answers a Command
type Reply struct {
	Version string `json:"version,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Message is the wire form of a Command: {"type": "...", "payload": ...}
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeCommand turns a wire message into a Command
func DecodeCommand(msg Message) (Command, error) {
	switch msg.Type {
	case "SKIP_WAITING":
		return SkipWaiting{}, nil
	case "GET_VERSION":
		return GetVersion{}, nil
	case "CLEAR_CACHE":
		return ClearCache{}, nil
	case "CACHE_URLS":
		var urls []string
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &urls); err != nil {
				return nil, fmt.Errorf("CACHE_URLS payload must be a list of URLs: %w", err)
			}
		}
		return CacheURLs{URLs: urls}, nil
	}
	return nil, fmt.Errorf("unknown command type %q", msg.Type)
}

// Handle executes cmd and returns its reply
func (c *Controller) Handle(ctx context.Context, cmd Command) Reply {
	c.log.Debug("command received", zap.String("type", cmd.commandType()))

	switch cmd := cmd.(type) {
	case SkipWaiting:
		if err := c.SkipWaiting(ctx); err != nil {
			return Reply{Error: err.Error()}
		}
		return Reply{Success: true}

	case GetVersion:
		return Reply{Version: c.names.App, Success: true}

	case ClearCache:
		if err := c.clearAll(ctx); err != nil {
			c.log.Error("clearing caches failed", zap.Error(err))
			return Reply{Error: err.Error()}
		}
		return Reply{Success: true}

	case CacheURLs:
		if err := c.cacheURLs(ctx, cmd.URLs); err != nil {
			c.log.Warn("caching requested URLs failed", zap.Error(err))
			return Reply{Error: err.Error()}
		}
		return Reply{Success: true}
	}
	return Reply{Error: fmt.Sprintf("unsupported command %T", cmd)}
}

func (c *Controller) clearAll(ctx context.Context) error {
	names, err := c.storage.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := c.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete cache %s: %w", name, err)
		}
	}
	c.log.Info("all caches cleared", zap.Int("caches", len(names)))
	return nil
}

// cacheURLs stores every URL or none, like Install
func (c *Controller) cacheURLs(ctx context.Context, urls []string) error {
	responses := make(map[string]*Response, len(urls))
	for _, raw := range urls {
		target, err := c.resolve(raw)
		if err != nil {
			return fmt.Errorf("cache %q: %w", raw, err)
		}
		resp, err := c.fetch(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("cache %s: %w", target, err)
		}
		if !resp.Cacheable() {
			resp.Close()
			return fmt.Errorf("cache %s: unexpected status %d", target, resp.Status)
		}
		responses[target.String()] = resp
	}
	for key, resp := range responses {
		if err := c.storage.Put(ctx, c.names.Dynamic, key, resp); err != nil {
			return fmt.Errorf("store %s: %w", key, err)
		}
	}
	return nil
}

// MessageHandler exposes Handle over HTTP: POST a Message, get a Reply
func (c *Controller) MessageHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		var msg Message
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(Reply{Error: "invalid message body"})
			return
		}
		cmd, err := DecodeCommand(msg)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(Reply{Error: err.Error()})
			return
		}

		reply := c.Handle(r.Context(), cmd)
		if !reply.Success {
			w.WriteHeader(http.StatusInternalServerError)
		}
		_ = json.NewEncoder(w).Encode(reply)
	})
}
