// SPDX-License-Identifier: GPL-3.0-or-later

package eventfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/netdata/statsd-core/internal/atom"
	"github.com/netdata/statsd-core/internal/configkey"
)

func TestDefaultsAlwaysInterested(t *testing.T) {
	f := New()
	assert.True(t, f.Interested(atom.AnomalyDetected))
	assert.False(t, f.Interested(atom.Id(9999)))
}

func TestConfigDeclaredAtomsTrackedByRefcount(t *testing.T) {
	f := New()
	a := configkey.Key{Uid: 1, Id: 1}
	b := configkey.Key{Uid: 1, Id: 2}

	f.SetConfig(a, []int32{9999})
	assert.True(t, f.Interested(atom.Id(9999)))

	f.SetConfig(b, []int32{9999})
	f.RemoveConfig(a)
	assert.True(t, f.Interested(atom.Id(9999)), "b still declares it")

	f.RemoveConfig(b)
	assert.False(t, f.Interested(atom.Id(9999)))
}

func TestSetConfigReplacesPreviousDeclaration(t *testing.T) {
	f := New()
	key := configkey.Key{Uid: 1, Id: 1}

	f.SetConfig(key, []int32{100})
	f.SetConfig(key, []int32{200})

	assert.False(t, f.Interested(atom.Id(100)))
	assert.True(t, f.Interested(atom.Id(200)))
}
