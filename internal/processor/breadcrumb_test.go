// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netdata/statsd-core/internal/atom"
)

func TestValidateAppBreadcrumbEventAcceptsMatchingUid(t *testing.T) {
	event := &atom.Event{LoggerUid: 1000, Fields: map[string]any{"uid": int64(1000), "state": int64(2)}}
	assert.True(t, validateAppBreadcrumbEvent(event, 9999))
}

func TestValidateAppBreadcrumbEventRejectsUidMismatch(t *testing.T) {
	event := &atom.Event{LoggerUid: 1000, Fields: map[string]any{"uid": int64(1234), "state": int64(2)}}
	assert.False(t, validateAppBreadcrumbEvent(event, 9999))
}

func TestValidateAppBreadcrumbEventAllowsDaemonUidMismatch(t *testing.T) {
	event := &atom.Event{LoggerUid: 9999, Fields: map[string]any{"uid": int64(1234), "state": int64(2)}}
	assert.True(t, validateAppBreadcrumbEvent(event, 9999))
}

func TestValidateAppBreadcrumbEventRejectsStateOutOfRange(t *testing.T) {
	event := &atom.Event{LoggerUid: 1000, Fields: map[string]any{"uid": int64(1000), "state": int64(4)}}
	assert.False(t, validateAppBreadcrumbEvent(event, 9999))
}
