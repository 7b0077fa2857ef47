package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. The watch daemon reloads config on file change; every
// consumer reads through a shared Holder so one reload updates them all.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{cfg: cfg, path: path}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. No lock needed; the path is immutable
// after construction.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}
