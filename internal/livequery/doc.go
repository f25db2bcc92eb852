// Package livequery keeps a filtered result set synchronized with a store
// while guaranteeing that one pinned record stays visible.
//
// A LiveQuery owns one (query, source) pair and at most one live
// subscription. Every bind computes the effective query with Augment
// (base OR id == pinned), evaluates it, and bridges the resulting
// collection to the registered callback. A PinTracker rebinds the query
// whenever the pin signal fires.
//
// Error policy: store and feed errors never reach the callback. They are
// reported to the Reporter and the callback receives nil, which callers
// render as "no results".
//
// Threading: a LiveQuery is not safe for concurrent use. Observe, Rebind,
// Close and the accessors must run on the query's dispatcher, which is
// where the stores and the pin tracker deliver as well.
package livequery
