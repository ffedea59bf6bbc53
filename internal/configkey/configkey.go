// SPDX-License-Identifier: GPL-3.0-or-later

// Package configkey defines the identity of a subscriber configuration.
package configkey

import "fmt"

// Key is the (uid, id) pair that identifies a configuration (spec.md §3).
type Key struct {
	Uid int32
	Id  int64
}

func (k Key) String() string {
	return fmt.Sprintf("(%d,%d)", k.Uid, k.Id)
}

// Less gives Key a total order by (uid, id).
func (k Key) Less(other Key) bool {
	if k.Uid != other.Uid {
		return k.Uid < other.Uid
	}
	return k.Id < other.Id
}
