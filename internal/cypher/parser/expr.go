package parser

import (
	"strconv"

	"github.com/nexusdb/nexus/internal/cypher/lexer"
)

// parseExpr parses a full expression at the lowest precedence (OR).
func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.OR) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseXor()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseXor() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.XOR) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "XOR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.AND) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.is(lexer.NOT) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case lexer.Equals, lexer.NotEquals, lexer.Less, lexer.LessEq, lexer.Greater, lexer.GreaterEq, lexer.Tilde:
			op := comparisonOpString(p.current.Type)
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Op: op, Left: left, Right: right}
		case lexer.IN:
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &InExpr{Item: left, List: right}
		case lexer.IS:
			if err := p.advance(); err != nil {
				return nil, err
			}
			negate := false
			if p.is(lexer.NOT) {
				negate = true
				if err := p.advance(); err != nil {
					return nil, err
				}
			}
			if _, err := p.expect(lexer.NULL); err != nil {
				return nil, err
			}
			left = &IsNullExpr{Operand: left, Negate: negate}
		case lexer.STARTS:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.WITH); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Op: "STARTS WITH", Left: left, Right: right}
		case lexer.ENDS:
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.WITH); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Op: "ENDS WITH", Left: left, Right: right}
		case lexer.CONTAINS:
			if err := p.advance(); err != nil {
				return nil, err
			}
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Op: "CONTAINS", Left: left, Right: right}
		default:
			return left, nil
		}
	}
}

func comparisonOpString(tt lexer.TokenType) string {
	switch tt {
	case lexer.Equals:
		return "="
	case lexer.NotEquals:
		return "<>"
	case lexer.Less:
		return "<"
	case lexer.LessEq:
		return "<="
	case lexer.Greater:
		return ">"
	case lexer.GreaterEq:
		return ">="
	case lexer.Tilde:
		return "=~"
	default:
		return "?"
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.Plus) || p.is(lexer.Minus) {
		op := "+"
		if p.is(lexer.Minus) {
			op = "-"
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.is(lexer.Star) || p.is(lexer.Slash) || p.is(lexer.Percent) {
		op := map[lexer.TokenType]string{lexer.Star: "*", lexer.Slash: "/", lexer.Percent: "%"}[p.current.Type]
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.is(lexer.Caret) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePower() // right-associative
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: "^", Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.is(lexer.Minus) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", Operand: operand}, nil
	}
	if p.is(lexer.Plus) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.parseUnary()
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current.Type {
		case lexer.Dot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			key, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			e = &PropertyAccess{Target: e, Key: key.Value}
		case lexer.Colon:
			if err := p.advance(); err != nil {
				return nil, err
			}
			label, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			lc, ok := e.(*LabelCheck)
			if !ok {
				lc = &LabelCheck{Target: e}
				e = lc
			}
			lc.Labels = append(lc.Labels, label.Value)
		case lexer.LBracket:
			indexed, err := p.parseIndexOrSlice(e)
			if err != nil {
				return nil, err
			}
			e = indexed
		default:
			return e, nil
		}
	}
}

// parseIndexOrSlice parses the `[...]` suffix of a postfix expression:
// either a single index (`arr[0]`, `arr[-1]`) or a slice with either bound
// optional (`arr[1..]`, `arr[..2]`, `arr[1..3]`).
func (p *Parser) parseIndexOrSlice(target Expr) (Expr, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	var lo Expr
	if !p.is(lexer.DotDot) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lo = e
	}
	if p.is(lexer.DotDot) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		var hi Expr
		if !p.is(lexer.RBracket) {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			hi = e
		}
		if _, err := p.expect(lexer.RBracket); err != nil {
			return nil, err
		}
		return &SliceExpr{Target: target, Lo: lo, Hi: hi}, nil
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	return &IndexExpr{Target: target, Index: lo}, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch p.current.Type {
	case lexer.NULL:
		return p.consumeExpr(&NullLiteral{})
	case lexer.TRUE:
		return p.consumeExpr(&BoolLiteral{Value: true})
	case lexer.FALSE:
		return p.consumeExpr(&BoolLiteral{Value: false})
	case lexer.Integer:
		n, err := strconv.ParseInt(p.current.Value, 10, 64)
		if err != nil {
			return nil, p.errorf("invalid integer literal %q", p.current.Value)
		}
		return p.consumeExpr(&IntLiteral{Value: n})
	case lexer.Float:
		f, err := strconv.ParseFloat(p.current.Value, 64)
		if err != nil {
			return nil, p.errorf("invalid float literal %q", p.current.Value)
		}
		return p.consumeExpr(&FloatLiteral{Value: f})
	case lexer.String:
		return p.consumeExpr(&StringLiteral{Value: p.current.Value})
	case lexer.Parameter:
		return p.consumeExpr(&ParameterExpr{Name: p.current.Value})
	case lexer.LParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.LBracket:
		return p.parseListLiteralOrComprehension()
	case lexer.LBrace:
		m, err := p.parseMapLiteral()
		if err != nil {
			return nil, err
		}
		return m, nil
	case lexer.CASE:
		return p.parseCaseExpr()
	case lexer.EXISTS:
		return p.parseExistsExpr()
	case lexer.Ident:
		return p.parseIdentOrCall()
	default:
		return nil, p.errorf("unexpected token %s in expression", p.current.Type)
	}
}

func (p *Parser) consumeExpr(e Expr) (Expr, error) {
	return e, p.advance()
}

func (p *Parser) parseListLiteralOrComprehension() (Expr, error) {
	if _, err := p.expect(lexer.LBracket); err != nil {
		return nil, err
	}
	list := &ListLiteral{}
	if p.is(lexer.RBracket) {
		return list, p.advance()
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Items = append(list.Items, e)
		if !p.is(lexer.Comma) {
			break
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.RBracket); err != nil {
		return nil, err
	}
	return list, nil
}

func (p *Parser) parseCaseExpr() (Expr, error) {
	if _, err := p.expect(lexer.CASE); err != nil {
		return nil, err
	}
	ce := &CaseExpr{}
	if !p.is(lexer.WHEN) {
		subject, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Subject = subject
	}
	for p.is(lexer.WHEN) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.THEN); err != nil {
			return nil, err
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Whens = append(ce.Whens, &CaseWhen{Cond: cond, Result: result})
	}
	if p.is(lexer.ELSE) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		ce.Else = e
	}
	if _, err := p.expect(lexer.END); err != nil {
		return nil, err
	}
	return ce, nil
}

// parseExistsExpr parses `EXISTS { (pattern) }` / `EXISTS((pattern))`, the
// pattern-existence subquery form (spec.md §4.9's "EXISTS subqueries").
// Only a single bare pattern is supported inside; arbitrary nested
// clauses are out of scope for this executor.
func (p *Parser) parseExistsExpr() (Expr, error) {
	if _, err := p.expect(lexer.EXISTS); err != nil {
		return nil, err
	}
	usesBrace := p.is(lexer.LBrace)
	if usesBrace {
		if err := p.advance(); err != nil {
			return nil, err
		}
	} else if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	pat, err := p.parsePatternPart()
	if err != nil {
		return nil, err
	}
	if usesBrace {
		if _, err := p.expect(lexer.RBrace); err != nil {
			return nil, err
		}
	} else if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	return &ExistsExpr{Pattern: pat}, nil
}

func (p *Parser) parseIdentOrCall() (Expr, error) {
	name := p.current.Value
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.is(lexer.LParen) {
		if err := p.advance(); err != nil {
			return nil, err
		}
		fc := &FunctionCall{Name: name}
		if p.is(lexer.DISTINCT) {
			fc.Distinct = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.is(lexer.Star) {
			fc.Args = append(fc.Args, &VariableExpr{Name: "*"})
			if err := p.advance(); err != nil {
				return nil, err
			}
		} else if !p.is(lexer.RParen) {
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				fc.Args = append(fc.Args, e)
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
		return fc, nil
	}
	return &VariableExpr{Name: name}, nil
}
