// Package doc provides the field-mapping value model shared by every
// ajstore package.
//
// This package has no internal imports. Records, collections and the
// persistence engines all exchange data as doc.Data, so doc stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Values are JSON-shaped: nil, bool, string, int64, float64, []any, Data
//   - Integers decode to int64, everything else numeric to float64
//   - A live record never appears inside Data; relations are References
//   - Content keys hash RFC 8785 canonical JSON, never encoding/json output
//   - All JSON tags use snake_case
package doc
