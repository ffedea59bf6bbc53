// SPDX-License-Identifier: GPL-3.0-or-later

package reportpb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func encodeVarintField(num protowire.Number, v uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, num, protowire.VarintType)
	b = protowire.AppendVarint(b, v)
	return b
}

func TestConfigMetricsReportListRoundTrip(t *testing.T) {
	want := ConfigMetricsReportList{
		ConfigKey: ConfigKey{Uid: 1000, Id: 42, ReportNumber: 3},
		Reports: []ConfigMetricsReport{
			{
				UidMap: UidMapDelta{Packages: []UidPackage{
					{Uid: 1000, PackageName: "com.example.app", VersionCode: 7},
				}},
				LastReportElapsedNanos:      1,
				CurrentReportElapsedNanos:   2,
				LastReportWallClockNanos:    3,
				CurrentReportWallClockNanos: 4,
				DumpReportReason:            2,
				Strings:                     []string{"a", "b"},
				DataCorruptedReason:         0,
			},
		},
	}

	encoded := EncodeConfigMetricsReportList(want)
	got, err := DecodeConfigMetricsReportList(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestActiveConfigListRoundTrip(t *testing.T) {
	want := ActiveConfigList{Configs: []ConfigKey{
		{Uid: 1, Id: 1},
		{Uid: 2, Id: 5},
	}}

	encoded := EncodeActiveConfigList(want)
	got, err := DecodeActiveConfigList(encoded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	var b []byte
	b = append(b, encodeVarintField(100, 5)...)
	b = append(b, encodeVarintField(1, 9)...)
	b = append(b, encodeVarintField(2, 10)...)

	got, err := decodeConfigKey(b)
	require.NoError(t, err)
	assert.Equal(t, int32(9), got.Uid)
	assert.Equal(t, int64(10), got.Id)
}
