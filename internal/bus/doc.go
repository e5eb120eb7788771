// Package bus implements a small in-process message bus connecting the
// interception boundary to the detection engines. Producers publish
// observations without knowing who consumes them, and request/response
// round trips (such as verdict checks) are correlated by ID so that a
// slow consumer cannot deliver a stale reply to the wrong caller.
package bus
