package bullhorn

import (
	"errors"

	"github.com/hazyhaar/bullhorn/internal/browser"
	"github.com/hazyhaar/bullhorn/internal/portal"
)

// Hard failures. Any of these aborts the run before the seen-set is
// touched and maps to a non-zero exit.
var (
	// ErrBrowserUnavailable means Chrome could not be launched or attached.
	ErrBrowserUnavailable = browser.ErrUnavailable

	// ErrLoginFailed means the portal could not be brought to a logged-in
	// state with the configured credentials.
	ErrLoginFailed = portal.ErrLoginFailed

	// ErrPanelUnavailable means the notification panel never opened, so no
	// detection was attempted.
	ErrPanelUnavailable = portal.ErrPanelUnavailable

	// ErrPersistFailed means the updated seen-set could not be written.
	// This fails the run loudly: carrying stale state forward would
	// re-deliver every announcement on the next run.
	ErrPersistFailed = errors.New("bullhorn: seen-set persist failed")
)
