// Package ir provides the runtime value types produced when a query plan is
// executed: scalars, tuples, records, entities and collections.
//
// All other internal packages import ir; ir imports nothing internal. This
// keeps the value layer at the bottom of the dependency graph.
//
// Key design constraints:
//   - NO float types anywhere - model scalars are int, string and bool
//   - Null is an explicit value, never a nil interface in results
//   - Entity identity is (type, key); Equal and IdentityKey honour it
package ir
