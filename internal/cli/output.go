package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mesh-intelligence/stride/internal/app"
	"github.com/mesh-intelligence/stride/internal/lifecycle"
	"github.com/mesh-intelligence/stride/internal/schedule"
	"github.com/mesh-intelligence/stride/pkg/types"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysErr(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// table returns a tabwriter; the caller flushes it.
func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, userErr(fmt.Errorf("invalid id %q", s))
	}
	return id, nil
}

func parseDate(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if s == "today" {
		d := types.StartOfDay(time.Now(), loc)
		return &d, nil
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return nil, userErr(fmt.Errorf("invalid date %q (expected YYYY-MM-DD)", s))
	}
	return &d, nil
}

func parseStatuses(s string) ([]types.TaskStatus, error) {
	if s == "" {
		return nil, nil
	}
	var out []types.TaskStatus
	for _, part := range strings.Split(s, ",") {
		st := types.TaskStatus(strings.TrimSpace(part))
		if !st.Valid() {
			return nil, userErr(fmt.Errorf("%w: %q", types.ErrInvalidStatus, st))
		}
		out = append(out, st)
	}
	return out, nil
}

func fmtDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(dateLayout)
}

func fmtSlot(t *types.Task) string {
	if t.ScheduledTime == nil {
		return "-"
	}
	return fmt.Sprintf("%s %dm", t.ScheduledTime.Local().Format(clockLayout), t.DurationMinutes)
}

// classify maps domain errors to exit codes.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return err
	}
	var conflict *schedule.ConflictError
	if errors.As(err, &conflict) {
		return userErr(err)
	}
	switch {
	case errors.Is(err, types.ErrNotFound),
		errors.Is(err, types.ErrInvalidName),
		errors.Is(err, types.ErrInvalidData),
		errors.Is(err, types.ErrInvalidStatus),
		errors.Is(err, types.ErrInvalidKind),
		errors.Is(err, types.ErrInvalidID),
		errors.Is(err, types.ErrTableNotFound),
		errors.Is(err, types.ErrTombstoned),
		errors.Is(err, schedule.ErrInvalidSlot),
		errors.Is(err, lifecycle.ErrIllegalTransition),
		errors.Is(err, lifecycle.ErrAlreadyFocused),
		errors.Is(err, lifecycle.ErrTaskCompleted),
		errors.Is(err, app.ErrSyncDisabled):
		return userErr(err)
	}
	return sysErr(err)
}
