package sqlast

import "strings"

// Parse tokenizes and parses a single SQL statement, returning its typed
// form or a *ParseError. Parse performs no name resolution: it never looks
// at a catalog, so "table does not exist" and "column does not exist" are
// not parse errors — they surface later, from the planner/catalog.
func Parse(query string) (*Statement, error) {
	p := &parser{lex: newLexer(query), input: query}
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, newParseError(p.cur.offset, "unexpected trailing input near '"+p.cur.text+"'")
	}
	return stmt, nil
}

type parser struct {
	lex   *lexer
	input string
	cur   token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) atKeyword(kw string) bool {
	return p.cur.kind == tokIdent && strings.EqualFold(p.cur.text, kw)
}

func (p *parser) expectKeyword(kw string) error {
	if !p.atKeyword(kw) {
		return newParseError(p.cur.offset, "expected keyword "+kw, kw)
	}
	return p.advance()
}

func (p *parser) expectPunct(s string) error {
	if p.cur.kind != tokPunct || p.cur.text != s {
		return newParseError(p.cur.offset, "expected '"+s+"'", s)
	}
	return p.advance()
}

func (p *parser) expectIdent() (string, error) {
	if p.cur.kind != tokIdent {
		return "", newParseError(p.cur.offset, "expected identifier")
	}
	name := p.cur.text
	return name, p.advance()
}

func (p *parser) parseStatement() (*Statement, error) {
	switch {
	case p.atKeyword("CREATE"):
		ct, err := p.parseCreateTable()
		if err != nil {
			return nil, err
		}
		return &Statement{CreateTable: ct}, nil
	case p.atKeyword("DROP"):
		dt, err := p.parseDropTable()
		if err != nil {
			return nil, err
		}
		return &Statement{DropTable: dt}, nil
	case p.atKeyword("INSERT"):
		ins, err := p.parseInsertFrom()
		if err != nil {
			return nil, err
		}
		return &Statement{InsertFrom: ins}, nil
	case p.atKeyword("SELECT"):
		sel, err := p.parseSelect()
		if err != nil {
			return nil, err
		}
		return &Statement{Select: sel}, nil
	default:
		return nil, newParseError(p.cur.offset, "expected CREATE, DROP, INSERT, or SELECT",
			"CREATE", "DROP", "INSERT", "SELECT")
	}
}

// --- CREATE TABLE ---

func (p *parser) parseCreateTable() (*CreateTable, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}

	var cols []ColumnDef
	for {
		colName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		typeName, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		normalized, ok := typeAliases[strings.ToUpper(typeName)]
		if !ok {
			return nil, newParseError(p.cur.offset, "unknown column type "+typeName)
		}
		notNull := false
		if p.atKeyword("IS") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.expectKeyword("NOT"); err != nil {
				return nil, err
			}
			if err := p.expectKeyword("NULL"); err != nil {
				return nil, err
			}
			notNull = true
		}
		cols = append(cols, ColumnDef{Name: colName, Type: normalized, NotNull: notNull})

		if p.cur.kind == tokPunct && p.cur.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}

	ifNotExists := false
	if p.atKeyword("IF") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("NOT"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ifNotExists = true
	}

	if err := checkUniqueColumns(cols); err != nil {
		return nil, err
	}

	return &CreateTable{Table: name, Columns: cols, IfNotExists: ifNotExists}, nil
}

func checkUniqueColumns(cols []ColumnDef) error {
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c.Name] {
			return newParseError(0, "duplicate column name "+c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}

// --- DROP TABLE ---

func (p *parser) parseDropTable() (*DropTable, error) {
	if err := p.expectKeyword("DROP"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	ifExists := false
	if p.atKeyword("IF") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("EXISTS"); err != nil {
			return nil, err
		}
		ifExists = true
	}
	return &DropTable{Table: name, IfExists: ifExists}, nil
}

// --- INSERT INTO ... FROM ---

func (p *parser) parseInsertFrom() (*InsertFrom, error) {
	if err := p.expectKeyword("INSERT"); err != nil {
		return nil, err
	}
	if err := p.expectKeyword("INTO"); err != nil {
		return nil, err
	}
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("FROM") {
		return nil, newParseError(p.cur.offset, "expected keyword FROM", "FROM")
	}

	// The lexer has not read past FROM yet. A bare path (/data/events.csv,
	// s3://bucket/key) holds characters the lexer rejects, so it is taken
	// from the raw input up to the next whitespace; a quoted path is lexed
	// as an ordinary string token.
	p.lex.skipSpace()
	if p.lex.pos < len(p.input) && p.input[p.lex.pos] != '\'' {
		p.cur = token{kind: tokIdent, offset: p.lex.pos}
	} else if err := p.advance(); err != nil {
		return nil, err
	}
	var path string
	switch p.cur.kind {
	case tokString:
		path = p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
	case tokIdent:
		path, err = p.parsePathIdent()
		if err != nil {
			return nil, err
		}
	default:
		return nil, newParseError(p.cur.offset, "expected a source path after FROM")
	}

	rowsPerShard := -1
	if p.atKeyword("ROWS") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("PER"); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("SHARD"); err != nil {
			return nil, err
		}
		if p.cur.kind != tokInt {
			return nil, newParseError(p.cur.offset, "expected an integer row count")
		}
		n, perr := parseIntLiteral(p.cur.text)
		if perr != nil {
			return nil, newParseError(p.cur.offset, "invalid row count")
		}
		rowsPerShard = int(n)
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	return &InsertFrom{Table: name, SourcePath: path, RowsPerShard: rowsPerShard}, nil
}

// parsePathIdent accumulates a slash/dot-separated bare path like
// /data/events or s3://bucket/key, which the lexer otherwise tokenizes into
// several idents and punctuation. We stitch it back together from the raw
// input between the current offset and the next whitespace.
func (p *parser) parsePathIdent() (string, error) {
	start := p.cur.offset
	end := start
	for end < len(p.input) && p.input[end] != ' ' && p.input[end] != '\t' && p.input[end] != '\n' {
		end++
	}
	path := p.input[start:end]
	p.lex.pos = end
	if err := p.advance(); err != nil {
		return "", err
	}
	return path, nil
}

// --- SELECT ---

func (p *parser) parseSelect() (*Select, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	table, err := p.expectIdent()
	if err != nil {
		return nil, err
	}

	var where *Where
	if p.atKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err = p.parseWhere()
		if err != nil {
			return nil, err
		}
	}

	var groupBy []string
	if p.atKeyword("GROUP") {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		groupBy, err = p.parseGroupByList()
		if err != nil {
			return nil, err
		}
	}

	sel := &Select{Items: items, Table: table, Where: where, GroupBy: groupBy}
	if err := validateSelectShape(sel); err != nil {
		return nil, err
	}
	return sel, nil
}

func (p *parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if p.cur.kind == tokPunct && p.cur.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return items, nil
}

var aggregateNames = map[string]AggregateFunc{
	"COUNT": AggCount,
	"SUM":   AggSum,
	"MIN":   AggMin,
	"MAX":   AggMax,
	"AVG":   AggAvg,
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.cur.kind == tokPunct && p.cur.text == "*" {
		if err := p.advance(); err != nil {
			return SelectItem{}, err
		}
		return SelectItem{Column: "*"}, nil
	}

	name, err := p.expectIdent()
	if err != nil {
		return SelectItem{}, err
	}

	if agg, ok := aggregateNames[strings.ToUpper(name)]; ok && p.cur.kind == tokPunct && p.cur.text == "(" {
		if err := p.advance(); err != nil {
			return SelectItem{}, err
		}
		star := false
		col := ""
		if p.cur.kind == tokPunct && p.cur.text == "*" {
			star = true
			if err := p.advance(); err != nil {
				return SelectItem{}, err
			}
		} else {
			col, err = p.expectIdent()
			if err != nil {
				return SelectItem{}, err
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return SelectItem{}, err
		}
		if star && agg != AggCount {
			return SelectItem{}, newParseError(p.cur.offset, string(agg)+"(*) is not supported, only COUNT(*)")
		}
		item := SelectItem{Aggregate: agg, Column: col, Star: star}
		alias, err := p.parseOptionalAlias()
		if err != nil {
			return SelectItem{}, err
		}
		item.Alias = alias
		return item, nil
	}

	item := SelectItem{Column: name}
	alias, err := p.parseOptionalAlias()
	if err != nil {
		return SelectItem{}, err
	}
	item.Alias = alias
	return item, nil
}

func (p *parser) parseOptionalAlias() (string, error) {
	if p.atKeyword("AS") {
		if err := p.advance(); err != nil {
			return "", err
		}
		return p.expectIdent()
	}
	// Bare alias without AS: `col alias`. Only accept this when the next
	// token is an identifier that isn't a clause keyword, to avoid eating
	// "FROM"/"WHERE"/etc.
	if p.cur.kind == tokIdent && !isClauseKeyword(p.cur.text) {
		return p.expectIdent()
	}
	return "", nil
}

func isClauseKeyword(s string) bool {
	switch strings.ToUpper(s) {
	case "FROM", "WHERE", "GROUP", "AND", "IS":
		return true
	}
	return false
}

func (p *parser) parseGroupByList() ([]string, error) {
	var cols []string
	for {
		col, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		if p.cur.kind == tokPunct && p.cur.text == "," {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return cols, nil
}

func (p *parser) parseWhere() (*Where, error) {
	var atoms []WhereAtom
	for {
		atom, err := p.parseWhereAtom()
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, atom)
		if p.atKeyword("AND") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	return &Where{Atoms: atoms}, nil
}

func (p *parser) parseWhereAtom() (WhereAtom, error) {
	col, err := p.expectIdent()
	if err != nil {
		return WhereAtom{}, err
	}

	if p.atKeyword("IS") {
		if err := p.advance(); err != nil {
			return WhereAtom{}, err
		}
		isNot := false
		if p.atKeyword("NOT") {
			isNot = true
			if err := p.advance(); err != nil {
				return WhereAtom{}, err
			}
		}
		if err := p.expectKeyword("NULL"); err != nil {
			return WhereAtom{}, err
		}
		return WhereAtom{Column: col, Kind: AtomIsNull, IsNot: isNot}, nil
	}

	if p.cur.kind != tokOp {
		return WhereAtom{}, newParseError(p.cur.offset, "expected a comparison operator or IS [NOT] NULL")
	}
	op := CompareOp(p.cur.text)
	if err := p.advance(); err != nil {
		return WhereAtom{}, err
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return WhereAtom{}, err
	}

	return WhereAtom{Column: col, Op: op, Value: lit, Kind: AtomCompare}, nil
}

func (p *parser) parseLiteral() (Literal, error) {
	switch p.cur.kind {
	case tokInt:
		n, err := parseIntLiteral(p.cur.text)
		if err != nil {
			return Literal{}, newParseError(p.cur.offset, "invalid integer literal")
		}
		lit := Literal{Kind: LiteralInt, Int: n}
		return lit, p.advance()
	case tokFloat:
		f, err := parseFloatLiteral(p.cur.text)
		if err != nil {
			return Literal{}, newParseError(p.cur.offset, "invalid float literal")
		}
		lit := Literal{Kind: LiteralFloat, Float: f}
		return lit, p.advance()
	case tokString:
		lit := Literal{Kind: LiteralString, Str: p.cur.text}
		return lit, p.advance()
	case tokIdent:
		switch strings.ToUpper(p.cur.text) {
		case "TRUE":
			return Literal{Kind: LiteralBool, Bool: true}, p.advance()
		case "FALSE":
			return Literal{Kind: LiteralBool, Bool: false}, p.advance()
		case "NULL":
			return Literal{Kind: LiteralNull}, p.advance()
		}
	}
	return Literal{}, newParseError(p.cur.offset, "expected a literal value")
}

// validateSelectShape enforces the static rule from spec §4.1: if any
// aggregate appears in the SELECT list, every non-aggregate projection must
// also appear in GROUP BY.
func validateSelectShape(sel *Select) error {
	if !sel.HasAggregates() {
		return nil
	}
	inGroupBy := make(map[string]bool, len(sel.GroupBy))
	for _, c := range sel.GroupBy {
		inGroupBy[c] = true
	}
	for _, item := range sel.Items {
		if item.IsAggregate() {
			continue
		}
		if item.Column == "*" {
			return newParseError(0, "SELECT * cannot be combined with an aggregate")
		}
		if !inGroupBy[item.Column] {
			return newParseError(0, "non-aggregate column "+item.Column+" must appear in GROUP BY")
		}
	}
	return nil
}
