// Package sender implements scheduler.MessageSender against a persistent
// browser session driven by go-rod. The browser is a single, non-shareable
// resource: RodSender serialises every Send through a single-lane queue so
// the Scheduler's belt-and-braces sender mutex is never actually tested
// under contention.
package sender

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/abdatta/wappflow/internal/pkg/logs"
	"github.com/abdatta/wappflow/internal/scheduler"
)

// minSendTimeout is the floor the design requires: the sender must not
// report unknown before at least this much time has elapsed.
const minSendTimeout = 20 * time.Second

// Config configures a RodSender.
type Config struct {
	// UserDataDir persists the browser profile (and therefore the logged-in
	// session) across restarts.
	UserDataDir string
	// Headless controls whether the browser window is visible. Leave false
	// for the first login so the operator can scan a QR code if required.
	Headless bool
	// SendTimeout is the per-Send deadline; SendTimeout < minSendTimeout is
	// clamped up.
	SendTimeout time.Duration
	// TargetURL is the chat service's web URL.
	TargetURL string
}

// RodSender drives a single persistent browser tab and reports outcomes
// against the narrow scheduler.MessageSender contract.
type RodSender struct {
	cfg     Config
	browser *rod.Browser
	page    *rod.Page
	ready   atomic.Bool

	mu sync.Mutex // single lane: only one Send in flight at a time
}

// clampSendTimeout raises d to minSendTimeout when it is shorter.
func clampSendTimeout(d time.Duration) time.Duration {
	if d < minSendTimeout {
		return minSendTimeout
	}
	return d
}

// New launches the browser and navigates to the target chat service. It
// does not block on login completion: IsReady reports false until the chat
// UI is confirmed present.
func New(cfg Config) (*RodSender, error) {
	cfg.SendTimeout = clampSendTimeout(cfg.SendTimeout)

	l := launcher.New().Headless(cfg.Headless)
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL).MustConnect()

	page := stealth.MustPage(browser)
	if cfg.TargetURL != "" {
		page = page.MustNavigate(cfg.TargetURL)
	}

	s := &RodSender{cfg: cfg, browser: browser, page: page}
	return s, nil
}

// IsReady reports whether the chat UI looks logged in and ready to accept a
// send. It is deliberately cheap: a single selector probe with a short
// timeout, never a full page reload.
func (s *RodSender) IsReady(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	page := s.page.Context(probeCtx)
	_, err := page.Timeout(2 * time.Second).Element(readySelector)
	ok := err == nil
	s.ready.Store(ok)
	return ok
}

// Send delivers message to contactName through the browser UI. It enforces
// cfg.SendTimeout internally and reports SendUnknown, never blocks the
// caller past that deadline, and never panics out of a DOM-automation
// failure — any such failure is reported as SendFailed.
func (s *RodSender) Send(ctx context.Context, contactName, message string) (outcome scheduler.SendOutcome, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		outcome, err = s.sendOnce(sendCtx, contactName, message)
	}()

	select {
	case <-done:
		return outcome, err
	case <-sendCtx.Done():
		logs.Warn("sender: send to %s timed out after %s", contactName, s.cfg.SendTimeout)
		return scheduler.SendUnknown, fmt.Errorf("send timed out after %s", s.cfg.SendTimeout)
	}
}

func (s *RodSender) sendOnce(ctx context.Context, contactName, message string) (outcome scheduler.SendOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			logs.Warn("sender: dom automation panic sending to %s: %v", contactName, r)
			outcome = scheduler.SendFailed
			err = fmt.Errorf("dom automation panic: %v", r)
		}
	}()

	page := s.page.Context(ctx)

	contact, err := page.Timeout(10 * time.Second).ElementR(contactSelector, contactName)
	if err != nil {
		return scheduler.SendFailed, fmt.Errorf("contact %q not found: %w", contactName, err)
	}
	if err := contact.Click("left", 1); err != nil {
		return scheduler.SendFailed, fmt.Errorf("open contact %q: %w", contactName, err)
	}

	box, err := page.Timeout(10 * time.Second).Element(messageBoxSelector)
	if err != nil {
		return scheduler.SendFailed, fmt.Errorf("message box not found: %w", err)
	}
	if err := box.Input(message); err != nil {
		return scheduler.SendFailed, fmt.Errorf("type message: %w", err)
	}
	if err := box.Type(input.Enter); err != nil {
		return scheduler.SendFailed, fmt.Errorf("submit message: %w", err)
	}

	if _, err := page.ElementR(sentIndicatorSelector, sentIndicatorText); err != nil {
		return scheduler.SendUnknown, fmt.Errorf("delivery not confirmed: %w", err)
	}
	return scheduler.SendOK, nil
}

// Close releases the underlying browser. Not part of the MessageSender
// contract; called only from process shutdown.
func (s *RodSender) Close() error {
	return s.browser.Close()
}
