// Package model is the read-only metadata model: entity types, scalar
// property types, primary keys, foreign keys and collection navigations.
//
// Entity types are linked by pointer. Code that needs "same type" compares
// pointers; derived types are distinct from their base even though they
// share its table and key.
package model
