// Package event provides the pub-sub bus the dashboard controller uses to
// notify renderers about run progress.
//
// The controller publishes; the terminal dashboard and the headless run
// printer subscribe. Neither side imports the other.
//
// # Event Types
//
//   - [RunStartedEvent] (run.started)
//   - [RunSettledEvent] (run.settled)
//   - [StreamEventReceived] (stream.event)
//   - [StreamClosedEvent] (stream.closed)
//   - [TimelineAdvancedEvent] (timeline.advanced)
//   - [HealthCheckedEvent] (health.checked)
//   - [ConfigReloadedEvent] (config.reloaded)
//
// Every run-scoped event embeds [Run], whose Generation lets subscribers
// ignore events from a run that has been superseded.
//
// # Usage
//
//	bus := event.NewBus(logger)
//	id := bus.Subscribe(event.TypeRunSettled, func(e event.Event) {
//	    settled := e.(event.RunSettledEvent)
//	    fmt.Println(settled.Message)
//	})
//	defer bus.Unsubscribe(id)
//
// Publish is synchronous and runs handlers on the caller's goroutine.
package event
