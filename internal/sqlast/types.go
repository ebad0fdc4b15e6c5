package sqlast

import "fmt"

// ColumnType is the fixed set of normalized column type names recognized by
// the dialect (spec §6). Parsing normalizes aliases (INTEGER -> INT,
// TEXT -> VARCHAR, ...) onto this set so the planner and catalog never see
// the alias form.
type ColumnType string

// Normalized column types. Every type name accepted by the grammar maps to
// exactly one of these.
const (
	TypeTinyInt    ColumnType = "TINYINT"
	TypeSmallInt   ColumnType = "SMALLINT"
	TypeInt        ColumnType = "INT"
	TypeBigInt     ColumnType = "BIGINT"
	TypeBignum     ColumnType = "BIGNUM"
	TypeUTinyInt   ColumnType = "UTINYINT"
	TypeUSmallInt  ColumnType = "USMALLINT"
	TypeUInt       ColumnType = "UINTEGER"
	TypeUBigInt    ColumnType = "UBIGINT"
	TypeFloat      ColumnType = "FLOAT"
	TypeDouble     ColumnType = "DOUBLE"
	TypeDecimal    ColumnType = "DECIMAL"
	TypeBoolean    ColumnType = "BOOLEAN"
	TypeVarchar    ColumnType = "VARCHAR"
	TypeUUID       ColumnType = "UUID"
	TypeBit        ColumnType = "BIT"
	TypeBlob       ColumnType = "BLOB"
	TypeDate       ColumnType = "DATE"
	TypeTime       ColumnType = "TIME"
	TypeTimestamp  ColumnType = "TIMESTAMP"
	TypeTimestampT ColumnType = "TIMESTAMPTZ"
	TypeInterval   ColumnType = "INTERVAL"
)

// typeAliases maps every spelling accepted by the grammar to its normalized
// ColumnType. Built once; parseCreateTable looks type names up here.
var typeAliases = map[string]ColumnType{
	"TINYINT":     TypeTinyInt,
	"SMALLINT":    TypeSmallInt,
	"INT":         TypeInt,
	"INTEGER":     TypeInt,
	"BIGINT":      TypeBigInt,
	"HUGEINT":     TypeBigInt,
	"BIGNUM":      TypeBignum,
	"UTINYINT":    TypeUTinyInt,
	"USMALLINT":   TypeUSmallInt,
	"UINTEGER":    TypeUInt,
	"UBIGINT":     TypeUBigInt,
	"UHUGEINT":    TypeUBigInt,
	"FLOAT":       TypeFloat,
	"REAL":        TypeFloat,
	"DOUBLE":      TypeDouble,
	"DECIMAL":     TypeDecimal,
	"NUMERIC":     TypeDecimal,
	"BOOLEAN":     TypeBoolean,
	"BOOL":        TypeBoolean,
	"VARCHAR":     TypeVarchar,
	"TEXT":        TypeVarchar,
	"STRING":      TypeVarchar,
	"CHAR":        TypeVarchar,
	"UUID":        TypeUUID,
	"BIT":         TypeBit,
	"BLOB":        TypeBlob,
	"BYTEA":       TypeBlob,
	"VARBINARY":   TypeBlob,
	"DATE":        TypeDate,
	"TIME":        TypeTime,
	"TIMESTAMP":   TypeTimestamp,
	"TIMESTAMPTZ": TypeTimestampT,
	"INTERVAL":    TypeInterval,
}

// ColumnDef is one column in a CREATE TABLE column list.
type ColumnDef struct {
	Name     string
	Type     ColumnType
	NotNull  bool
}

// CreateTable is the parsed form of `CREATE TABLE t (...) [IF NOT EXISTS]`.
type CreateTable struct {
	Table         string
	Columns       []ColumnDef
	IfNotExists   bool
}

// DropTable is the parsed form of `DROP TABLE t [IF EXISTS]`.
type DropTable struct {
	Table    string
	IfExists bool
}

// InsertFrom is the parsed form of `INSERT INTO t FROM <path> [ROWS PER SHARD n]`.
// RowsPerShard is -1 when the clause was omitted, meaning the engine's
// configured default_rows_per_shard applies.
type InsertFrom struct {
	Table        string
	SourcePath   string
	RowsPerShard int
}

// AggregateFunc is one of the five supported aggregate functions.
type AggregateFunc string

const (
	AggCount AggregateFunc = "COUNT"
	AggSum   AggregateFunc = "SUM"
	AggMin   AggregateFunc = "MIN"
	AggMax   AggregateFunc = "MAX"
	AggAvg   AggregateFunc = "AVG"
)

// SelectItem is one entry in a SELECT list: either a bare column reference
// or an aggregate function applied to a column or to `*`.
//
// Exactly one of (Column alone) or (Aggregate set) is meaningful:
//   - bare column:       Aggregate == "", Column == "event_id"
//   - aggregate(col):    Aggregate == AggSum, Column == "value", Star == false
//   - aggregate(*):      Aggregate == AggCount, Star == true
type SelectItem struct {
	Alias     string
	Column    string
	Aggregate AggregateFunc
	Star      bool
}

// IsAggregate reports whether this projection is an aggregate call.
func (s SelectItem) IsAggregate() bool { return s.Aggregate != "" }

// OutputName is the name this item projects under: the explicit alias if
// given, otherwise a name derived from the column or aggregate call.
func (s SelectItem) OutputName() string {
	if s.Alias != "" {
		return s.Alias
	}
	if s.IsAggregate() {
		arg := s.Column
		if s.Star {
			arg = "*"
		}
		return fmt.Sprintf("%s(%s)", s.Aggregate, arg)
	}
	return s.Column
}

// CompareOp is one of the six supported comparison operators.
type CompareOp string

const (
	OpEq  CompareOp = "="
	OpNe  CompareOp = "!="
	OpLt  CompareOp = "<"
	OpLe  CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGe  CompareOp = ">="
)

// LiteralKind tags the Go type carried by a Literal value.
type LiteralKind int

const (
	LiteralInt LiteralKind = iota
	LiteralFloat
	LiteralBool
	LiteralString
	LiteralNull
)

// Literal is a typed constant parsed from the query text.
type Literal struct {
	Int    int64
	Float  float64
	Bool   bool
	Str    string
	Kind   LiteralKind
}

// String renders the literal the way it would appear back in SQL text, used
// when the planner re-serializes rewritten WHERE clauses into map_sql.
func (l Literal) String() string {
	switch l.Kind {
	case LiteralInt:
		return fmt.Sprintf("%d", l.Int)
	case LiteralFloat:
		return fmt.Sprintf("%g", l.Float)
	case LiteralBool:
		if l.Bool {
			return "TRUE"
		}
		return "FALSE"
	case LiteralString:
		return "'" + escapeQuotes(l.Str) + "'"
	default:
		return "NULL"
	}
}

func escapeQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// AtomKind distinguishes a comparison atom from an IS [NOT] NULL atom.
type AtomKind int

const (
	AtomCompare AtomKind = iota
	AtomIsNull
)

// WhereAtom is one conjunct of the WHERE clause: `col OP literal` or
// `col IS [NOT] NULL`.
type WhereAtom struct {
	Column  string
	Op      CompareOp
	Value   Literal
	Kind    AtomKind
	IsNot   bool // only meaningful when Kind == AtomIsNull
}

// String renders the atom back to SQL text.
func (a WhereAtom) String() string {
	if a.Kind == AtomIsNull {
		if a.IsNot {
			return fmt.Sprintf("%s IS NOT NULL", a.Column)
		}
		return fmt.Sprintf("%s IS NULL", a.Column)
	}
	return fmt.Sprintf("%s %s %s", a.Column, a.Op, a.Value.String())
}

// Where is the WHERE clause: a conjunction (AND-only) of atoms. A nil/empty
// Where or nil pointer means "no filter".
type Where struct {
	Atoms []WhereAtom
}

// String renders the whole clause, joined with AND, or "" if empty.
func (w *Where) String() string {
	if w == nil || len(w.Atoms) == 0 {
		return ""
	}
	out := w.Atoms[0].String()
	for _, a := range w.Atoms[1:] {
		out += " AND " + a.String()
	}
	return out
}

// Select is the parsed form of a SELECT statement.
type Select struct {
	Where   *Where
	Table   string
	Items   []SelectItem
	GroupBy []string
}

// HasAggregates reports whether any SELECT item is an aggregate call.
func (s *Select) HasAggregates() bool {
	for _, item := range s.Items {
		if item.IsAggregate() {
			return true
		}
	}
	return false
}

// Statement is the tagged union of the four supported statement shapes.
// Exactly one field is non-nil after a successful Parse.
type Statement struct {
	CreateTable *CreateTable
	DropTable   *DropTable
	InsertFrom  *InsertFrom
	Select      *Select
}
