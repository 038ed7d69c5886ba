package ast

import (
	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/token"
)

// scanFragment tokenizes an embedded `$(expr)`/`$name` interpolation
// fragment with its own Scanner, reusing the surrounding file name for
// error messages (§4.D "String interpolation").
func scanFragment(src, file string, line int) ([]token.Token, error) {
	sc := token.NewScanner(src, file)
	toks := sc.Scan()
	if err := sc.Err(); err != nil {
		return nil, rerr.NewParse(file, line, 1, src, "%v", err)
	}
	return toks, nil
}
