// Package classify maps transient entity identities to icon categories.
//
// A Cache lives for exactly one area. Chest and hidden-monster verdicts are
// memoized per entity on first sight and never re-evaluated, even if the
// entity later reports a different path; the scheduler replaces the Cache
// wholesale on every area change.
package classify
