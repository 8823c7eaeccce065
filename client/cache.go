// cache.go -- key/value storage for the client's token, user snapshot and chat histories.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Fixed cache keys, shared with the web front end.
const (
	KeyToken         = "weddingkityaari_token"
	KeyCurrentUser   = "weddingkityaari_current_user"
	KeyChatHistories = "weddingkityaari_chat_histories"
)

// ErrCacheMiss is returned by Get when key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores string values by key. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryCache is a process-local Cache. Zero value is ready to use.
type MemoryCache struct {
	mu     sync.Mutex
	values map[string]string
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]string)
	}
	c.values[key] = value
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	return nil
}

// FileCache keeps all keys in one JSON object on disk, so a CLI keeps its
// session and local chats across restarts.
type FileCache struct {
	Path string
	mu   sync.Mutex
}

// NewFileCache returns a FileCache at path. The file is created on first Set.
func NewFileCache(path string) *FileCache {
	return &FileCache{Path: path}
}

func (c *FileCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	values, err := c.load()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (c *FileCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	values, err := c.load()
	if err != nil {
		return err
	}
	values[key] = value
	return c.save(values)
}

func (c *FileCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	values, err := c.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(values, k)
	}
	return c.save(values)
}

// load reads the file; a missing file is an empty cache.
func (c *FileCache) load() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decoding cache file: %w", err)
	}
	return values, nil
}

// save writes via a temp file + rename so a crash never leaves half a file.
func (c *FileCache) save(values map[string]string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o700); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(c.Path), ".cache-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.Path)
}
