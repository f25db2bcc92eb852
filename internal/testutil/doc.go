// Package testutil provides deterministic collaborators for live query tests.
//
// FakeCollection lets a test push arbitrary change events and counts
// registrations and cancellations. FakeSource hands out FakeCollections and
// can be told to fail.
package testutil
