// Package engine provides the delivery loop that live queries run on.
//
// ARCHITECTURE:
//
// Single-Consumer Task Loop:
// Stores detect changes on their own goroutines (the writer, or a poller
// watching for commits from other processes) and Post closures to a Loop.
// The Loop runs them one at a time in post order, so every callback for a
// live query observes one consistent, ordered history:
//
// 1. A store commits a write and re-evaluates live collections
// 2. Each collection posts one task per subscriber
// 3. Loop.Run (or Drain) dequeues tasks in FIFO order
// 4. The task checks the subscriber is still active and invokes it
//
// A subscriber released in step 4 by an earlier task never sees later tasks:
// the active check happens when the task runs, not when it is posted.
//
// The loop is designed for ordering and determinism, not throughput. It has
// no worker pool.
package engine
