// Package metadata provides typed metadata documents and a Roaring
// Bitmap-based field index for fast filtering during vector search.
//
// String values are interned through Go's unique package, so repeated
// string values across many documents share storage. Map keys are not
// interned.
//
// # Metadata Types
//
// Values can be:
//
//   - String: metadata.String("tech")
//   - Int: metadata.Int(2024)
//   - Float: metadata.Float(3.14)
//   - Bool: metadata.Bool(true)
//   - Array: metadata.Array([]metadata.Value{metadata.String("a"), metadata.String("b")})
//
// Example:
//
//	doc := metadata.Document{
//	    "category":  metadata.String("tech"),
//	    "year":      metadata.Int(2024),
//	    "published": metadata.Bool(true),
//	}
//
// # Filter Expressions
//
// Build filter expressions with boolean combinators:
//
//   - Eq(field, value), Ne(field, value): equality / inequality
//   - Gt, Gte, Lt, Lte(field, value): numeric comparison
//   - In(field, values...), Nin(field, values...): set membership
//   - Exists(field): field is present
//   - And(exprs...), Or(exprs...), Not(expr): logical combinators
//
// Example:
//
//	filter := metadata.And(
//	    metadata.Eq("category", metadata.String("tech")),
//	    metadata.Gte("year", metadata.Int(2023)),
//	)
//
// # Field index and pushdown
//
// A FieldIndex maintains a roaring-bitmap inverted index per indexed
// field. Pushdown resolves a filter expression entirely against those
// bitmaps, skipping per-document evaluation, for expressions built only
// from Eq, And, and Or over indexed fields. Any expression that touches
// an unindexed field, or uses an operator Pushdown does not understand,
// falls back to evaluating Expr.Matches against the loaded document.
package metadata
