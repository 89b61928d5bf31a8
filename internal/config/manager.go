package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ChangeHandler is called with the previous and the newly loaded config
type ChangeHandler func(old, updated *Config)

// Manager holds the live configuration and reloads it when the file or
// the policy directory changes
type Manager struct {
	path    string
	v       *viper.Viper
	logger  *zap.Logger
	current *Config

	handlers       []ChangeHandler
	policyHandlers []func() error

	policyWatcher *fsnotify.Watcher
	started       bool
	stopCh        chan struct{}
	mu            sync.RWMutex
	reloadMu      sync.Mutex
}

// NewManager loads the config at path and prepares it for watching
func NewManager(path string, logger *zap.Logger) (*Manager, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return &Manager{
		path:    path,
		v:       v,
		logger:  logger,
		current: cfg,
		stopCh:  make(chan struct{}),
	}, nil
}

// Current returns the active configuration. Callers must not mutate it.
func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// OnChange registers a handler run after every successful reload
func (m *Manager) OnChange(handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// RegisterPolicyHandler registers a handler run when a .rego file changes
func (m *Manager) RegisterPolicyHandler(handler func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policyHandlers = append(m.policyHandlers, handler)
	m.logger.Info("Policy reload handler registered")
}

// Start watches the config file and, when policy.path is set, the policy directory
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	policyDir := m.current.Policy.Path
	m.mu.Unlock()

	if _, err := os.Stat(m.path); err == nil {
		m.v.OnConfigChange(func(e fsnotify.Event) {
			m.logger.Debug("Config file event",
				zap.String("file", e.Name),
				zap.String("op", e.Op.String()))
			if err := m.reload(); err != nil {
				m.logger.Error("Failed to reload config", zap.Error(err))
			}
		})
		m.v.WatchConfig()
	} else {
		m.logger.Info("No config file found, using defaults and environment",
			zap.String("path", m.path))
	}

	if policyDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create file watcher: %w", err)
		}
		if err := watcher.Add(policyDir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch policy directory: %w", err)
		}
		m.policyWatcher = watcher
		go m.watchLoop(ctx)
	}

	m.logger.Info("Configuration manager started",
		zap.String("config_path", m.path),
		zap.String("policy_dir", policyDir))
	return nil
}

// Stop ends policy directory watching
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}
	close(m.stopCh)
	m.started = false
	if m.policyWatcher != nil {
		if err := m.policyWatcher.Close(); err != nil {
			m.logger.Error("Error closing file watcher", zap.Error(err))
		}
	}
	m.logger.Info("Configuration manager stopped")
	return nil
}

// reload re-reads the file, keeps the old config if the new one is invalid,
// and notifies handlers
func (m *Manager) reload() error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	if err := m.v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	updated, err := decode(m.v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	old := m.current
	m.current = updated
	handlers := make([]ChangeHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	for _, h := range handlers {
		h(old, updated)
	}
	m.logger.Info("Configuration reloaded", zap.String("path", m.path))
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Watch loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case event, ok := <-m.policyWatcher.Events:
			if !ok {
				return
			}
			m.handlePolicyEvent(event)
		case err, ok := <-m.policyWatcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

func (m *Manager) handlePolicyEvent(event fsnotify.Event) {
	if filepath.Ext(event.Name) != ".rego" || event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		// editors often write in several steps
		time.Sleep(50 * time.Millisecond)
	}

	m.mu.RLock()
	handlers := make([]func() error, len(m.policyHandlers))
	copy(handlers, m.policyHandlers)
	m.mu.RUnlock()

	m.logger.Info("Policy file changed, triggering reload",
		zap.String("file", filepath.Base(event.Name)),
		zap.String("op", event.Op.String()),
		zap.Int("handlers", len(handlers)))

	for _, handler := range handlers {
		if err := handler(); err != nil {
			m.logger.Error("Policy reload handler failed",
				zap.String("file", filepath.Base(event.Name)),
				zap.Error(err))
		}
	}
}
