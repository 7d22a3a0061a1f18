// Package notifier provides desktop build notifications
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/censor-ci/censor/pkg/logger"
)

// SendFunc delivers a single notification
type SendFunc func(title, message string) error

// BuildNotifier sends build outcome notifications to the desktop
type BuildNotifier struct {
	enabled bool
	sound   bool
	logger  logger.Logger
	send    SendFunc
	beep    func() error
	mu      sync.Mutex
}

// Config represents notification configuration
type Config struct {
	Enabled bool
	Sound   bool
}

// Option customises a BuildNotifier
type Option func(*BuildNotifier)

// WithSender replaces the beeep delivery, mainly for tests
func WithSender(send SendFunc) Option {
	return func(n *BuildNotifier) {
		n.send = send
		n.beep = func() error { return nil }
	}
}

// New creates a new build notifier
func New(config Config, log logger.Logger, opts ...Option) *BuildNotifier {
	if log == nil {
		log = logger.Nop()
	}
	n := &BuildNotifier{
		enabled: config.Enabled,
		sound:   config.Sound,
		logger:  log,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		beep: func() error {
			return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
		},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether notifications are delivered
func (n *BuildNotifier) Enabled() bool {
	return n.enabled
}

// Notify sends a notification. It is a no-op when disabled.
func (n *BuildNotifier) Notify(title, message string) error {
	if !n.enabled {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.send(title, message); err != nil {
		n.logger.Debug("Failed to send notification", logger.WithField("error", err))
		return fmt.Errorf("send notification: %w", err)
	}
	if n.sound {
		if err := n.beep(); err != nil {
			n.logger.Debug("Failed to play sound", logger.WithField("error", err))
		}
	}
	return nil
}

// NotifyBuildSuccess notifies that a build succeeded
func (n *BuildNotifier) NotifyBuildSuccess(project string, buildID int64, duration time.Duration) error {
	return n.Notify(
		"✅ Build Succeeded",
		fmt.Sprintf("%s #%d passed in %s", project, buildID, FormatDuration(duration)),
	)
}

// NotifyBuildFailure notifies that a build failed
func (n *BuildNotifier) NotifyBuildFailure(project string, buildID int64, errorsTotal int) error {
	return n.Notify(
		"❌ Build Failed",
		fmt.Sprintf("%s #%d failed with %d error(s)", project, buildID, errorsTotal),
	)
}

// FormatDuration renders a duration compactly
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
