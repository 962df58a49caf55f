// Package filter selects which runtime events the dashboard's event log
// panel shows.
//
// A [Filter] combines level categories (errors, warnings, info, debug) with
// a glob over event names compiled by gobwas/glob. The glob starts from the
// tui.event_filter config key and can be edited live from the filter panel.
//
// # Usage
//
//	f, err := filter.NewWithPattern("workflow.*")
//	if err != nil {
//	    return err
//	}
//	f.ToggleCategory("debug")
//	visible := f.Apply(snapshot.Events)
package filter
