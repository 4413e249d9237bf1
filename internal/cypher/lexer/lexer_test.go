package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func typesOf(t *testing.T, src string) []TokenType {
	t.Helper()
	toks, err := Tokenize(src)
	require.NoError(t, err)
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestTokenizePunctuationAndArrows(t *testing.T) {
	require.Equal(t,
		[]TokenType{LParen, Ident, Colon, Ident, RParen, ArrowPlain, ArrowRight, LParen, Ident, RParen, EOF},
		typesOf(t, "(a:Person)-->(b)"),
	)
	require.Equal(t,
		[]TokenType{LParen, Ident, RParen, ArrowLeft, LParen, Ident, RParen, EOF},
		typesOf(t, "(a)<-(b)"),
	)
}

func TestTokenizeComparisonOperators(t *testing.T) {
	require.Equal(t,
		[]TokenType{Ident, NotEquals, Ident, EOF},
		typesOf(t, "a<>b"),
	)
	require.Equal(t,
		[]TokenType{Ident, LessEq, Integer, EOF},
		typesOf(t, "a<=5"),
	)
	require.Equal(t,
		[]TokenType{Ident, GreaterEq, Integer, EOF},
		typesOf(t, "a>=5"),
	)
	require.Equal(t,
		[]TokenType{Ident, Tilde, String, EOF},
		typesOf(t, `a=~"foo.*"`),
	)
}

func TestTokenizeKeywordsAreCaseInsensitive(t *testing.T) {
	toks, err := Tokenize("match (n) where n.age > 10 return n")
	require.NoError(t, err)
	require.Equal(t, MATCH, toks[0].Type)
	require.Equal(t, "match", toks[0].Value)

	toks, err = Tokenize("MATCH (n) WHERE n.age > 10 RETURN n")
	require.NoError(t, err)
	require.Equal(t, MATCH, toks[0].Type)
}

func TestTokenizeIdentifierIsNotMistakenForKeywordPrefix(t *testing.T) {
	toks, err := Tokenize("returning")
	require.NoError(t, err)
	require.Equal(t, Ident, toks[0].Type)
	require.Equal(t, "returning", toks[0].Value)
}

func TestTokenizeStringEscapes(t *testing.T) {
	toks, err := Tokenize(`"a\nb\tc\\d\"e"`)
	require.NoError(t, err)
	require.Equal(t, String, toks[0].Type)
	require.Equal(t, "a\nb\tc\\d\"e", toks[0].Value)

	toks, err = Tokenize(`'single quoted'`)
	require.NoError(t, err)
	require.Equal(t, "single quoted", toks[0].Value)
}

func TestTokenizeUnterminatedStringErrors(t *testing.T) {
	_, err := Tokenize(`"unterminated`)
	require.Error(t, err)
}

func TestTokenizeBacktickIdentifier(t *testing.T) {
	toks, err := Tokenize("`weird name`")
	require.NoError(t, err)
	require.Equal(t, Ident, toks[0].Type)
	require.Equal(t, "weird name", toks[0].Value)
}

func TestTokenizeNumbers(t *testing.T) {
	toks, err := Tokenize("42 3.14 1e10 2.5e-3")
	require.NoError(t, err)
	require.Equal(t, Integer, toks[0].Type)
	require.Equal(t, Float, toks[1].Type)
	require.Equal(t, Float, toks[2].Type)
	require.Equal(t, Float, toks[3].Type)
}

func TestTokenizeDotDotVsDot(t *testing.T) {
	require.Equal(t, []TokenType{Integer, DotDot, Integer, EOF}, typesOf(t, "1..5"))
	require.Equal(t, []TokenType{Ident, Dot, Ident, EOF}, typesOf(t, "n.age"))
}

func TestTokenizeParameter(t *testing.T) {
	toks, err := Tokenize("$name")
	require.NoError(t, err)
	require.Equal(t, Parameter, toks[0].Type)
	require.Equal(t, "name", toks[0].Value)

	_, err = Tokenize("$")
	require.Error(t, err)
}

func TestTokenizeSkipsLineComments(t *testing.T) {
	toks, err := Tokenize("RETURN 1 // trailing comment\nRETURN 2")
	require.NoError(t, err)
	require.Equal(t, []TokenType{RETURN, Integer, RETURN, Integer, EOF}, typesFrom(toks))
}

func typesFrom(toks []Token) []TokenType {
	types := make([]TokenType, len(toks))
	for i, tok := range toks {
		types[i] = tok.Type
	}
	return types
}

func TestTokenizeUnexpectedCharacterErrors(t *testing.T) {
	_, err := Tokenize("@")
	require.Error(t, err)
}

func TestTokenTracksLineAndColumn(t *testing.T) {
	toks, err := Tokenize("RETURN 1\nRETURN 2")
	require.NoError(t, err)
	require.Equal(t, 1, toks[0].Line)
	// Second RETURN is on line 2.
	var secondReturn Token
	count := 0
	for _, tok := range toks {
		if tok.Type == RETURN {
			count++
			if count == 2 {
				secondReturn = tok
			}
		}
	}
	require.Equal(t, 2, secondReturn.Line)
}

func TestTokenTypeStringRendersKeywordsAndSpecials(t *testing.T) {
	require.Equal(t, "EOF", EOF.String())
	require.Equal(t, "IDENT", Ident.String())
	require.Equal(t, "PARAM", Parameter.String())
	require.Equal(t, "MATCH", MATCH.String())
}
