// Package notify raises desktop notifications.
package notify

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/ignite/pulse/internal/pkg/logger"
)

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(title, message string)
}

// Nop drops every notification.
type Nop struct{}

func (Nop) Notify(string, string) {}

// Desktop shows notifications through the OS notification center.
type Desktop struct {
	log  logger.Func
	show func(title, message string, icon any) error
}

// NewDesktop creates a notifier that labels notifications with appName.
func NewDesktop(appName string, log logger.Func) *Desktop {
	if log == nil {
		log = logger.Nop
	}
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{log: log, show: beeep.Notify}
}

// Notify never fails; delivery errors are logged.
func (d *Desktop) Notify(title, message string) {
	defer func() {
		if r := recover(); r != nil {
			d.log(fmt.Sprintf("notification panicked: %v", r), logger.WARN, "notify")
		}
	}()
	if err := d.show(title, message, ""); err != nil {
		d.log(fmt.Sprintf("notification failed: %v", err), logger.WARN, "notify")
	}
}
