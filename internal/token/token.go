// Package token defines the lexical tokens the scanner produces for the
// parser's recursive descent, per §4.D.
package token

import "fmt"

type Kind int

const (
	EOF Kind = iota
	Ident
	Int
	Float
	String // may carry Interp fragments for $name / $(expr) interpolation
	Global
	True
	False
	Nil
	If
	Else
	End
	While
	Do
	For
	In
	Function
	Return
	Break
	Continue

	LParen
	RParen
	LBracket
	RBracket
	LBrace
	RBrace
	Comma
	Dot
	Colon
	Ellipsis // "..." unary unpack

	Assign
	Plus
	Minus
	Star
	Slash
	Percent
	Hash
	Bang
	Tilde

	EqEq
	NotEq
	Gte
	Gt
	Lte
	Lt
	AndAnd
	OrOr
	KwAnd
	KwOr
)

var names = map[Kind]string{
	EOF: "eof", Ident: "ident", Int: "int", Float: "float", String: "string",
	Global: "global", True: "true", False: "false", Nil: "nil",
	If: "if", Else: "else", End: "end", While: "while", Do: "do",
	For: "for", In: "in", Function: "function", Return: "return",
	Break: "break", Continue: "continue",
	LParen: "(", RParen: ")", LBracket: "[", RBracket: "]",
	LBrace: "{", RBrace: "}", Comma: ",", Dot: ".", Colon: ":",
	Ellipsis: "...", Assign: "=", Plus: "+", Minus: "-", Star: "*",
	Slash: "/", Percent: "%", Hash: "#", Bang: "!", Tilde: "~",
	EqEq: "==", NotEq: "!=", Gte: ">=", Gt: ">", Lte: "<=", Lt: "<",
	AndAnd: "&&", OrOr: "||", KwAnd: "and", KwOr: "or",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "?"
}

var Keywords = map[string]Kind{
	"global": Global, "true": True, "false": False, "nil": Nil,
	"if": If, "else": Else, "end": End, "while": While, "do": Do,
	"for": For, "in": In, "function": Function, "return": Return,
	"break": Break, "continue": Continue, "and": KwAnd, "or": KwOr,
}

// Frag is one piece of a (possibly interpolated) string literal: either a
// literal run of text, or the source text of an embedded `$name`/`$(expr)`
// expression to be parsed and compiled separately and concatenated, per
// §4.D "String interpolation".
type Frag struct {
	Literal bool
	Text    string
}

type Token struct {
	Kind   Kind
	Lexeme string
	Frags  []Frag // only set for Kind == String
	Line   int
	Col    int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Lexeme, t.Line, t.Col)
}
