// Package view renders the panels of the prflow dashboard.
//
// Every function here is a pure function over a dashboard snapshot (or a
// piece of one) and a target width; none of them hold state or talk to the
// backend. The bubbletea model in package tui composes them, and the
// headless run command reuses them to print the final state.
//
// # Panels
//
//   - [RenderHeader]: backend URL, health, stream status and run clock
//   - [RenderForm]: the run form (owner, repo, issue, base branch, dry run)
//   - [RenderTimeline]: the six workflow steps with their render classes
//   - [RenderAgents]: per-agent last action and deliverable
//   - [RenderResult]: the reconciled outcome with result fields
//   - [EventLines]: the event log body shown in a scrolling viewport
//   - [RenderHelp]: key bindings for the current mode
package view
