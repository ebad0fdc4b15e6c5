// Package sqlast implements the minimal SQL dialect accepted at the
// coordinator's query surface: tokenizing and parsing a single statement
// string into a typed AST, with no name resolution and no optimization.
//
// # Scope
//
// The grammar is exactly the one in spec §6: CREATE TABLE, DROP TABLE,
// INSERT INTO ... FROM, and SELECT with a conjunctive WHERE and an optional
// GROUP BY. There is no JOIN, UPDATE, DELETE, ORDER BY, subquery, or LIMIT
// support — attempting to parse any of those fails with a *ParseError.
//
// # Static validation
//
// The parser enforces, at parse time rather than deferring to a later
// analysis pass:
//   - SELECT list entries are bare columns, aggregate(column), or aggregate(*)
//   - WHERE is a conjunction (AND-only) of `col OP literal` or
//     `col IS [NOT] NULL` atoms
//   - GROUP BY lists only bare columns
//   - if any aggregate appears in the SELECT list, every non-aggregate
//     projection also appears in GROUP BY
//
// Name resolution (does the column exist, does its type support the
// aggregate) is deliberately left to the planner, which has the resolved
// schema; this package never touches a catalog.
package sqlast
