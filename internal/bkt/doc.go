// Package bkt implements Bayesian Knowledge Tracing for a single skill.
//
// A learner's knowledge of a skill is modelled as a two-state hidden Markov
// model (mastered / not mastered). After every answered question, Update
// folds the observed outcome into the current mastery probability:
//
//  1. Evidence: Bayes' rule with the slip and guess probabilities.
//  2. Learning: P' = P + (1 - P) * Transit.
//  3. Optional nudge from response time and self-reported confidence,
//     bounded by MaxNudge and never reversing the direction of the update.
//  4. Clamp into [Epsilon, 1-Epsilon] so the estimate stays revisable.
//
// Update is a pure function over value types. It performs no I/O and is
// safe for concurrent use. Persisting the returned State is the caller's job.
package bkt
