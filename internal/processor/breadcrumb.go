// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import "github.com/netdata/statsd-core/internal/atom"

// validateAppBreadcrumbEvent implements spec.md §4.1 step 12: the
// event's declared uid must match the logger's (post uid remap) unless
// the logger is the trusted daemon uid, and the declared state must
// fall in [0,3].
func validateAppBreadcrumbEvent(event *atom.Event, trustedDaemonUid int32) bool {
	state := event.Int64("state")
	if state < 0 || state > 3 {
		return false
	}
	if event.LoggerUid == trustedDaemonUid {
		return true
	}
	return int32(event.Int64("uid")) == event.LoggerUid
}
