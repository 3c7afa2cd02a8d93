// Package domain defines the shared value types of the metrics pipeline:
// projects, dashboard snapshots, chart series and attribution reports.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No I/O and no context.Context in struct fields
//   - Derived values are pure methods on the type
package domain
