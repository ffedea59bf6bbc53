// SPDX-License-Identifier: GPL-3.0-or-later

package processor

import "errors"

// errNoRestrictedDBOpener is returned when a restricted-metrics config
// is installed but the caller never supplied WithRestrictedDBOpener.
// The original SQL engine is out of scope (spec.md §1); a processor
// that never expects restricted configs can leave this unset.
var errNoRestrictedDBOpener = errors.New("processor: no restricted db opener configured")
