package printer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/saveweb/solar-tracker/pkg/tracker"
)

// Explain prints err with a title and suggestions chosen by its tracker
// error kind, and returns the short error Cobra should see.
func Explain(action string, err error) error {
	var (
		verr     *tracker.ValidationError
		mismatch *tracker.ConfigMismatchError
		remote   *tracker.RemoteError
		terr     *tracker.TransportError
	)

	switch {
	case errors.As(err, &mismatch):
		return ErrorWithContext(
			"Client version mismatch",
			fmt.Sprintf("Cannot %s: the tracker no longer accepts this client.", action),
			map[string]string{"Local": mismatch.Local, "Tracker": mismatch.Remote},
			[]string{"Upgrade the archivist and set client_version to the tracker's version"},
		)
	case errors.As(err, &verr):
		return Error(
			"Invalid input",
			fmt.Sprintf("Cannot %s: %v", action, verr),
			[]string{"Identifiers may only contain letters, digits, '_' and '-'"},
		)
	case errors.As(err, &remote):
		suggestions := []string{"Check the tracker logs for details"}
		switch remote.StatusCode {
		case http.StatusNotFound:
			suggestions = []string{"Check the project identifier (see 'archivist projects --all')"}
		case http.StatusBadRequest:
			suggestions = []string{
				"Check whether the project is paused",
				"Check that client_version matches the project",
			}
		}
		return ErrorWithContext(
			fmt.Sprintf("Tracker rejected %s", remote.Op),
			fmt.Sprintf("Cannot %s.", action),
			map[string]string{"Status": fmt.Sprint(remote.StatusCode), "Body": remote.Body},
			suggestions,
		)
	case errors.As(err, &terr):
		return ErrorWithContext(
			"Tracker unreachable",
			fmt.Sprintf("Cannot %s: %v", action, terr.Err),
			map[string]string{"URL": terr.URL},
			[]string{"Check your network, or pin a node with SOLAR_TRACKER_URL"},
		)
	}
	return Error(fmt.Sprintf("Failed to %s", action), err.Error(), nil)
}
