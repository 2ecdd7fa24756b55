// Package batch runs per-item work across a bounded worker pool and hands
// each result to a consumer callback in strict input order.
//
// Work completes in any order. Completed outcomes wait in a pending table
// until every lower index has been drained, so the consumer observes index
// 0, 1, 2, ... regardless of scheduling. Two failure policies are supported:
//
//   - FailFast stops delivering at the first failing index and returns its
//     error. Items that have not started yet are skipped.
//   - CollectAll runs every item, delivers every success, and hands the
//     ordered failure list to an Aggregator that decides what to return.
//
// An error returned (or a panic raised) by the consumer callback itself is an
// EngineError. It is always returned and takes priority over item failures.
package batch
