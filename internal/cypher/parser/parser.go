package parser

import (
	"strconv"

	"github.com/nexusdb/nexus/internal/cypher/lexer"
	"github.com/nexusdb/nexus/internal/nexuserr"
)

// Parser turns a Cypher token stream into a Query AST.
type Parser struct {
	lex     *lexer.Lexer
	current lexer.Token
	peeked  *lexer.Token
}

// New creates a Parser over src.
func New(src string) *Parser {
	return &Parser{lex: lexer.New(src)}
}

// Parse parses a complete Cypher statement (spec.md §4.9).
func Parse(src string) (*Query, error) {
	p := New(src)
	if err := p.advance(); err != nil {
		return nil, err
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.current.Type != lexer.EOF {
		return nil, p.errorf("unexpected token %s (expected end of query)", p.current.Type)
	}
	return q, nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return nexuserr.New(nexuserr.KindParse, format, args...).AtLocation(p.current.Line, p.current.Column)
}

func (p *Parser) advance() error {
	if p.peeked != nil {
		p.current = *p.peeked
		p.peeked = nil
		return nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return nexuserr.Wrap(nexuserr.KindParse, err, "lex error")
	}
	p.current = t
	return nil
}

func (p *Parser) peek() (lexer.Token, error) {
	if p.peeked != nil {
		return *p.peeked, nil
	}
	t, err := p.lex.Next()
	if err != nil {
		return lexer.Token{}, nexuserr.Wrap(nexuserr.KindParse, err, "lex error")
	}
	p.peeked = &t
	return t, nil
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	if p.current.Type != tt {
		return lexer.Token{}, p.errorf("expected %s, got %s", tt, p.current.Type)
	}
	tok := p.current
	return tok, p.advance()
}

func (p *Parser) is(tt lexer.TokenType) bool { return p.current.Type == tt }

// --- top-level ---

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}
	sq, err := p.parseSingleQuery()
	if err != nil {
		return nil, err
	}
	q.Parts = append(q.Parts, sq)
	for p.is(lexer.UNION) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		all := false
		if p.is(lexer.ALL) {
			all = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		next, err := p.parseSingleQuery()
		if err != nil {
			return nil, err
		}
		q.UnionAll = append(q.UnionAll, all)
		q.Parts = append(q.Parts, next)
	}
	return q, nil
}

func (p *Parser) parseSingleQuery() (*SingleQuery, error) {
	sq := &SingleQuery{}
	for {
		var c Clause
		var err error
		switch p.current.Type {
		case lexer.MATCH, lexer.OPTIONAL:
			c, err = p.parseMatchClause()
		case lexer.CREATE:
			c, err = p.parseCreateClause()
		case lexer.MERGE:
			c, err = p.parseMergeClause()
		case lexer.SET:
			c, err = p.parseSetClause()
		case lexer.REMOVE:
			c, err = p.parseRemoveClause()
		case lexer.DELETE, lexer.DETACH:
			c, err = p.parseDeleteClause()
		case lexer.WITH:
			c, err = p.parseWithClause()
		case lexer.RETURN:
			c, err = p.parseReturnClause()
		case lexer.UNWIND:
			c, err = p.parseUnwindClause()
		case lexer.FOREACH:
			c, err = p.parseForeachClause()
		case lexer.CALL:
			c, err = p.parseCallClause()
		default:
			if len(sq.Clauses) == 0 {
				return nil, p.errorf("unexpected token %s at start of query", p.current.Type)
			}
			return sq, nil
		}
		if err != nil {
			return nil, err
		}
		sq.Clauses = append(sq.Clauses, c)
		if _, isReturn := c.(*ReturnClause); isReturn {
			return sq, nil
		}
		if p.is(lexer.EOF) || p.is(lexer.UNION) {
			return sq, nil
		}
	}
}

// --- clauses ---

func (p *Parser) parseMatchClause() (Clause, error) {
	m := &MatchClause{}
	if p.is(lexer.OPTIONAL) {
		m.Optional = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.MATCH); err != nil {
		return nil, err
	}
	patterns, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	m.Patterns = patterns
	if p.is(lexer.WHERE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Where = where
	}
	return m, nil
}

func (p *Parser) parseCreateClause() (Clause, error) {
	if _, err := p.expect(lexer.CREATE); err != nil {
		return nil, err
	}
	patterns, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	return &CreateClause{Patterns: patterns}, nil
}

func (p *Parser) parseMergeClause() (Clause, error) {
	if _, err := p.expect(lexer.MERGE); err != nil {
		return nil, err
	}
	pat, err := p.parsePatternPart()
	if err != nil {
		return nil, err
	}
	mc := &MergeClause{Pattern: pat}
	for p.is(lexer.ON) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		switch p.current.Type {
		case lexer.CREATE:
			if err := p.advance(); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			mc.OnCreate = items
		case lexer.MATCH:
			if err := p.advance(); err != nil {
				return nil, err
			}
			items, err := p.parseSetItems()
			if err != nil {
				return nil, err
			}
			mc.OnMatch = items
		default:
			return nil, p.errorf("expected CREATE or MATCH after ON, got %s", p.current.Type)
		}
	}
	return mc, nil
}

func (p *Parser) parseSetClause() (Clause, error) {
	if _, err := p.expect(lexer.SET); err != nil {
		return nil, err
	}
	items, err := p.parseSetItems()
	if err != nil {
		return nil, err
	}
	return &SetClause{Items: items}, nil
}

func (p *Parser) parseSetItems() ([]*SetItem, error) {
	var items []*SetItem
	for {
		item, err := p.parseSetItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.is(lexer.Comma) {
			return items, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseSetItem() (*SetItem, error) {
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	switch p.current.Type {
	case lexer.Colon:
		if err := p.advance(); err != nil {
			return nil, err
		}
		label, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		return &SetItem{Target: name.Value, Label: label.Value}, nil
	case lexer.Dot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		key, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Equals); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &SetItem{Target: name.Value, Key: key.Value, Value: val}, nil
	case lexer.Equals:
		if err := p.advance(); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &SetItem{Target: name.Value, Value: val}, nil
	case lexer.Plus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Equals); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &SetItem{Target: name.Value, Value: val, MergeProp: true}, nil
	default:
		return nil, p.errorf("expected ':', '.', or '=' after identifier in SET, got %s", p.current.Type)
	}
}

func (p *Parser) parseRemoveClause() (Clause, error) {
	if _, err := p.expect(lexer.REMOVE); err != nil {
		return nil, err
	}
	var items []*RemoveItem
	for {
		name, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		switch p.current.Type {
		case lexer.Colon:
			if err := p.advance(); err != nil {
				return nil, err
			}
			label, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			items = append(items, &RemoveItem{Target: name.Value, Label: label.Value})
		case lexer.Dot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			items = append(items, &RemoveItem{Target: name.Value, Key: key.Value})
		default:
			return nil, p.errorf("expected ':' or '.' after identifier in REMOVE, got %s", p.current.Type)
		}
		if !p.is(lexer.Comma) {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return &RemoveClause{Items: items}, nil
}

func (p *Parser) parseDeleteClause() (Clause, error) {
	detach := false
	if p.is(lexer.DETACH) {
		detach = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.DELETE); err != nil {
		return nil, err
	}
	var vars []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		vars = append(vars, e)
		if !p.is(lexer.Comma) {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	return &DeleteClause{Detach: detach, Variables: vars}, nil
}

func (p *Parser) parseWithClause() (Clause, error) {
	if _, err := p.expect(lexer.WITH); err != nil {
		return nil, err
	}
	w := &WithClause{}
	if p.is(lexer.DISTINCT) {
		w.Distinct = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	proj, err := p.parseProjectionList()
	if err != nil {
		return nil, err
	}
	w.Projection = proj
	if p.is(lexer.WHERE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		w.Where = where
	}
	orderBy, skip, limit, err := p.parseOrderSkipLimit()
	if err != nil {
		return nil, err
	}
	w.OrderBy, w.Skip, w.Limit = orderBy, skip, limit
	return w, nil
}

func (p *Parser) parseReturnClause() (Clause, error) {
	if _, err := p.expect(lexer.RETURN); err != nil {
		return nil, err
	}
	r := &ReturnClause{}
	if p.is(lexer.DISTINCT) {
		r.Distinct = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	proj, err := p.parseProjectionList()
	if err != nil {
		return nil, err
	}
	r.Projection = proj
	orderBy, skip, limit, err := p.parseOrderSkipLimit()
	if err != nil {
		return nil, err
	}
	r.OrderBy, r.Skip, r.Limit = orderBy, skip, limit
	return r, nil
}

func (p *Parser) parseOrderSkipLimit() ([]*SortItem, Expr, Expr, error) {
	var orderBy []*SortItem
	var skip, limit Expr
	if p.is(lexer.ORDER) {
		if err := p.advance(); err != nil {
			return nil, nil, nil, err
		}
		if _, err := p.expect(lexer.BY); err != nil {
			return nil, nil, nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, err
			}
			desc := false
			if p.is(lexer.DESC) {
				desc = true
				if err := p.advance(); err != nil {
					return nil, nil, nil, err
				}
			} else if p.is(lexer.ASC) {
				if err := p.advance(); err != nil {
					return nil, nil, nil, err
				}
			}
			orderBy = append(orderBy, &SortItem{Expr: e, Descending: desc})
			if !p.is(lexer.Comma) {
				break
			}
			if err := p.advance(); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	if p.is(lexer.SKIP) {
		if err := p.advance(); err != nil {
			return nil, nil, nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, nil, nil, err
		}
		skip = e
	}
	if p.is(lexer.LIMIT) {
		if err := p.advance(); err != nil {
			return nil, nil, nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, nil, nil, err
		}
		limit = e
	}
	return orderBy, skip, limit, nil
}

func (p *Parser) parseProjectionList() ([]*ProjectionItem, error) {
	var items []*ProjectionItem
	for {
		if p.is(lexer.Star) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			items = append(items, &ProjectionItem{Star: true})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := &ProjectionItem{Expr: e}
			if p.is(lexer.AS) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				alias, err := p.expect(lexer.Ident)
				if err != nil {
					return nil, err
				}
				item.Alias = alias.Value
			}
			items = append(items, item)
		}
		if !p.is(lexer.Comma) {
			return items, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parseUnwindClause() (Clause, error) {
	if _, err := p.expect(lexer.UNWIND); err != nil {
		return nil, err
	}
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.AS); err != nil {
		return nil, err
	}
	alias, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	return &UnwindClause{List: list, As: alias.Value}, nil
}

func (p *Parser) parseForeachClause() (Clause, error) {
	if _, err := p.expect(lexer.FOREACH); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	variable, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.IN); err != nil {
		return nil, err
	}
	list, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.Pipe); err != nil {
		return nil, err
	}
	fc := &ForeachClause{Variable: variable.Value, List: list}
	for !p.is(lexer.RParen) {
		var c Clause
		switch p.current.Type {
		case lexer.CREATE:
			c, err = p.parseCreateClause()
		case lexer.MERGE:
			c, err = p.parseMergeClause()
		case lexer.SET:
			c, err = p.parseSetClause()
		case lexer.DELETE, lexer.DETACH:
			c, err = p.parseDeleteClause()
		case lexer.REMOVE:
			c, err = p.parseRemoveClause()
		default:
			return nil, p.errorf("unsupported clause %s inside FOREACH", p.current.Type)
		}
		if err != nil {
			return nil, err
		}
		fc.Clauses = append(fc.Clauses, c)
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return fc, nil
}

func (p *Parser) parseCallClause() (Clause, error) {
	if _, err := p.expect(lexer.CALL); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	proc := name.Value
	for p.is(lexer.Dot) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		part, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		proc += "." + part.Value
	}
	cc := &CallClause{Procedure: proc}
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	if !p.is(lexer.RParen) {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			cc.Args = append(cc.Args, e)
			if !p.is(lexer.Comma) {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	if p.is(lexer.YIELD) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		for {
			id, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			cc.Yield = append(cc.Yield, id.Value)
			if !p.is(lexer.Comma) {
				break
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	return cc, nil
}

// --- patterns ---

func (p *Parser) parsePatternList() ([]*PatternPart, error) {
	var parts []*PatternPart
	for {
		part, err := p.parsePatternPart()
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
		if !p.is(lexer.Comma) {
			return parts, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
}

func (p *Parser) parsePatternPart() (*PatternPart, error) {
	part := &PatternPart{}

	if p.is(lexer.Ident) {
		next, err := p.peek()
		if err != nil {
			return nil, err
		}
		if next.Type == lexer.Equals {
			part.Variable = p.current.Value
			if err := p.advance(); err != nil {
				return nil, err
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
	}
	if p.current.Type == lexer.Ident && (p.current.Value == "shortestPath" || p.current.Value == "allShortestPaths") {
		part.ShortestPath = p.current.Value == "shortestPath"
		part.AllShortestPaths = p.current.Value == "allShortestPaths"
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.LParen); err != nil {
			return nil, err
		}
		if err := p.parsePatternChainInto(part); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return part, nil
	}
	if err := p.parsePatternChainInto(part); err != nil {
		return nil, err
	}
	return part, nil
}

func (p *Parser) parsePatternChainInto(part *PatternPart) error {
	first, err := p.parseNodePattern()
	if err != nil {
		return err
	}
	part.Nodes = append(part.Nodes, first)
	for p.is(lexer.ArrowPlain) || p.is(lexer.ArrowLeft) {
		rel, err := p.parseRelPattern()
		if err != nil {
			return err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return err
		}
		part.Rels = append(part.Rels, rel)
		part.Nodes = append(part.Nodes, node)
	}
	return nil
}

func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	n := &NodePattern{}
	if p.is(lexer.Ident) {
		n.Variable = p.current.Value
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	for p.is(lexer.Colon) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		label, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		n.Labels = append(n.Labels, label.Value)
	}
	if p.is(lexer.LBrace) {
		m, err := p.parseMapLiteral()
		if err != nil {
			return nil, err
		}
		n.Properties = m
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *Parser) parseRelPattern() (*RelPattern, error) {
	r := &RelPattern{Direction: Either}
	leftArrow := p.is(lexer.ArrowLeft)
	if err := p.advance(); err != nil { // consume '-' or '<-'
		return nil, err
	}
	if p.is(lexer.LBracket) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.is(lexer.Ident) {
			r.Variable = p.current.Value
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		for p.is(lexer.Colon) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			t, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			r.Types = append(r.Types, t.Value)
			for p.is(lexer.Pipe) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.is(lexer.Colon) { // tolerate `|:TYPE`
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
				t, err := p.expect(lexer.Ident)
				if err != nil {
					return nil, err
				}
				r.Types = append(r.Types, t.Value)
			}
		}
		if p.is(lexer.Star) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			spec := &VarLengthSpec{}
			if p.is(lexer.Integer) {
				n, err := strconv.Atoi(p.current.Value)
				if err != nil {
					return nil, p.errorf("invalid variable-length bound %q", p.current.Value)
				}
				spec.Min = &n
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if p.is(lexer.DotDot) {
				if err := p.advance(); err != nil {
					return nil, err
				}
				if p.is(lexer.Integer) {
					n, err := strconv.Atoi(p.current.Value)
					if err != nil {
						return nil, p.errorf("invalid variable-length bound %q", p.current.Value)
					}
					spec.Max = &n
					if err := p.advance(); err != nil {
						return nil, err
					}
				}
			} else if spec.Min != nil {
				spec.Max = spec.Min
			}
			r.VarLength = spec
		}
		if p.is(lexer.LBrace) {
			m, err := p.parseMapLiteral()
			if err != nil {
				return nil, err
			}
			r.Properties = m
		}
		if _, err := p.expect(lexer.RBracket); err != nil {
			return nil, err
		}
	}
	rightArrow := false
	switch p.current.Type {
	case lexer.ArrowRight:
		rightArrow = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	case lexer.ArrowPlain:
		if err := p.advance(); err != nil {
			return nil, err
		}
	default:
		return nil, p.errorf("expected relationship arrow terminator, got %s", p.current.Type)
	}
	switch {
	case leftArrow && !rightArrow:
		r.Direction = Incoming
	case rightArrow && !leftArrow:
		r.Direction = Outgoing
	default:
		r.Direction = Either
	}
	return r, nil
}

func (p *Parser) parseMapLiteral() (*MapLiteral, error) {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	m := &MapLiteral{}
	if p.is(lexer.RBrace) {
		return m, p.advance()
	}
	for {
		key, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Keys = append(m.Keys, key.Value)
		m.Values = append(m.Values, val)
		if !p.is(lexer.Comma) {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return m, nil
}
