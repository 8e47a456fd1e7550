// CLAUDE:SUMMARY Owns the single headless Chrome session of a run: lazy launch or remote connect, idempotent close.
// Package browser manages the headless Chrome session screenshots are taken
// with: started lazily on first use, shared by every capture of a run,
// released once by Close.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned by a Manager used after Close.
var ErrClosed = errors.New("browser: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin is the Chrome binary. Empty lets launcher find or download one.
	Bin string

	// NoSandbox is needed when running as root in containers.
	NoSandbox bool

	// Stealth opens pages through go-rod/stealth.
	Stealth bool

	// Block lists request URL patterns or resource types (images, fonts,
	// media, stylesheets, scripts) to fail before they load.
	Block []string

	// ViewportHeight is the initial viewport height. Default: 100.
	// Screenshots are full page, so it only affects layout.
	ViewportHeight int

	// NavigationTimeout bounds navigation plus load wait. Default: 5s.
	NavigationTimeout time.Duration

	// Scroll walks the page in viewport steps before the screenshot so lazy
	// content is rendered.
	Scroll      bool
	ScrollDelay time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 100
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 5 * time.Second
	}
	if c.ScrollDelay <= 0 {
		c.ScrollDelay = 100 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process (or remote connection).
type Manager struct {
	cfg     Config
	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a Manager. Chrome is not started until the first
// capture.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Browser returns the session, starting it on first call.
func (m *Manager) Browser(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := m.launch()
	if err != nil {
		m.cleanup()
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Started reports whether a session is currently open.
func (m *Manager) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// Close shuts Chrome down. Safe to call more than once and without a
// prior start.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.cleanup()
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(true)
		if m.cfg.Bin != "" {
			l = l.Bin(m.cfg.Bin)
		}
		if m.cfg.NoSandbox {
			l = l.NoSandbox(true)
		}
		// Keep scrollbars out of the pixels.
		l = l.Set("hide-scrollbars")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL, "stealth", m.cfg.Stealth)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	// Preview servers on localhost often run with self-signed certs.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanup() error {
	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
		m.cfg.Logger.Info("browser: closed")
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}
