// SPDX-License-Identifier: GPL-3.0-or-later

package restricteddb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netdata/statsd-core/internal/configkey"
)

func TestResolveConfigKeysNotFound(t *testing.T) {
	_, qerr := ResolveConfigKeys(1, []int32{1000},
		func(configkey.Key) bool { return false },
		func(configkey.Key) bool { return true },
	)
	require.NotNil(t, qerr)
	assert.Equal(t, ReasonConfigKeyNotFound, qerr.Reason)
}

func TestResolveConfigKeysDelegateMismatch(t *testing.T) {
	_, qerr := ResolveConfigKeys(1, []int32{1000},
		func(configkey.Key) bool { return true },
		func(configkey.Key) bool { return false },
	)
	require.NotNil(t, qerr)
	assert.Equal(t, ReasonConfigKeyWithUnmatchedDelegate, qerr.Reason)
}

func TestResolveConfigKeysAmbiguous(t *testing.T) {
	keys, qerr := ResolveConfigKeys(1, []int32{1000, 2000},
		func(configkey.Key) bool { return true },
		func(configkey.Key) bool { return true },
	)
	require.Nil(t, qerr)
	assert.Len(t, keys, 2, "caller decides ambiguity; resolution just returns all matches")
}

func TestQuerySucceeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	key := configkey.Key{Uid: 1000, Id: 1}
	h := NewHandles(func(configkey.Key) (*sql.DB, error) { return db, nil })

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"metric", "value"}).
			AddRow("a", "1").
			AddRow("b", "2"),
	)

	res, qerr := h.Query(context.Background(), key, "SELECT metric, value FROM t")
	require.Nil(t, qerr)
	assert.Equal(t, []string{"metric", "value"}, res.ColumnNames)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"a", "1"}, res.Rows[0])
}

func TestQueryFailureTaggedAsQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	key := configkey.Key{Uid: 1000, Id: 1}
	h := NewHandles(func(configkey.Key) (*sql.DB, error) { return db, nil })

	mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)

	_, qerr := h.Query(context.Background(), key, "SELECT * FROM t")
	require.NotNil(t, qerr)
	assert.Equal(t, ReasonQueryFailure, qerr.Reason)
}
