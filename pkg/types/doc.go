// Package types holds the shared data model: drives, md arrays, pool
// records, operations and the boundary error kinds.
package types
