// Package engine executes query plans against the SQLite store.
//
// The engine is the runtime half of collection decorrelation: it rewrites a
// plan, compiles its relational parts to SQL, and evaluates the selector
// once per parent row.
//
// ARCHITECTURE:
//
// Execution Flow:
// 1. Execute() validates the plan and, unless naive, rewrites it
// 2. The top-level plan is compiled and run as one SQL statement
// 3. The selector is evaluated per parent row inside a memo scope
// 4. Each CorrelateCollection calls into the QueryBuffer, which opens the
//    child statement once and zips its rows onto the parent rows
//
// Naive mode skips the rewrite: every correlated subquery is compiled with
// the current parent row bound as parameters and run once per parent row.
// Both modes produce equal results, which is what the equivalence checks
// in the harness rely on.
//
// Execution is single-threaded. One Execute call owns the plan it is given
// and the QueryBuffer it creates.
//
// CRITICAL PATTERNS:
//
// Statement Clock:
// Every SQL statement issued by one execution is stamped with a monotonic
// seq from Clock.Next(), so logs show the statement order and Result reports
// how many statements ran.
//
// Deterministic Ordering:
// Compiled statements always end in a primary-key tiebreaker, so parent and
// child rows arrive in the same relative order on every run.
package engine
