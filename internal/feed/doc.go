// Package feed defines the change-notification vocabulary shared by stores
// and observers: Snapshot, ChangeEvent, Collection, CancelToken and the
// Dispatcher that carries events onto an observer's execution context.
//
// LiveCollection is the reusable half of a store's change feed. A store
// evaluates its query, hands each fresh result to Refresh, and LiveCollection
// computes the deletion/insertion/modification index sets against the
// previous snapshot and posts one Updated event per subscriber.
//
// Index conventions:
//   - Deletions index the PREVIOUS snapshot
//   - Insertions and Modifications index the NEW snapshot
//
// Delivery contract:
//   - Events for one subscriber are posted in Refresh order
//   - A subscriber's first event is Initial (or Failed if the collection is
//     already dead)
//   - Failed is terminal: the collection delivers nothing after it
//   - After CancelToken.Cancel returns, queued events for that subscriber
//     are dropped when they reach the dispatcher
package feed
