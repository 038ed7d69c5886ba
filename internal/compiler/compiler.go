// Package compiler walks the AST and emits a bytecode.Chunk. It follows
// the mark/limit sub-frame discipline throughout: every statement opens
// its own mark and closes it with a LIMIT that fixes the statement's
// result arity (0 for a plain expression statement, len(targets) for an
// assignment), per §4.E.
package compiler

import (
	"fmt"

	"github.com/seanpringle/rela/internal/ast"
	"github.com/seanpringle/rela/internal/bytecode"
	"github.com/seanpringle/rela/internal/pool"
	"github.com/seanpringle/rela/internal/rerr"
	"github.com/seanpringle/rela/internal/token"
	"github.com/seanpringle/rela/internal/value"
)

type Compiler struct {
	chunk    *bytecode.Chunk
	interner *pool.Interner
	file     string

	// jumpTargets records every instruction index a jump can land on, so
	// the peephole pass can refuse to fuse across it (a fusion that
	// swallows a jump target would strand any jump aimed at the
	// instruction it ate).
	jumpTargets map[int]bool

	loopDepth int
}

func New(chunk *bytecode.Chunk, interner *pool.Interner, file string) *Compiler {
	return &Compiler{chunk: chunk, interner: interner, file: file, jumpTargets: map[int]bool{}}
}

// JumpTargets exposes the recorded jump-target set for the peephole pass.
func (c *Compiler) JumpTargets() map[int]bool { return c.jumpTargets }

func (c *Compiler) emit(op bytecode.Op, imm value.Item, line, col int) int {
	return c.chunk.Emit(op, imm, bytecode.Debug{Line: line, Col: col, File: c.file})
}

func (c *Compiler) patch(ip int, imm value.Item) {
	c.chunk.Patch(ip, imm)
	c.jumpTargets[int(imm.I)] = true
}

func (c *Compiler) markJump(target int) {
	c.jumpTargets[target] = true
}

func (c *Compiler) intern(s string) *string {
	return c.interner.Intern(s)
}

func (c *Compiler) str(s string) value.Item {
	return value.String(c.intern(s))
}

func (c *Compiler) errf(n *ast.Node, format string, args ...any) error {
	return rerr.NewCompile(c.file, n.Line, n.Col, "", format, args...)
}

// Module compiles a parsed program into the chunk under the given module
// name (component I: one chunk, many modules, each with its own start
// offset).
func (c *Compiler) Module(name string, root *ast.Node) error {
	c.chunk.StartModule(name)
	if err := c.compileBlockChildren(root); err != nil {
		return err
	}
	c.emit(bytecode.OpStop, value.Nil(), 0, 0)
	return nil
}

// compileBlockChildren compiles a KMulti's children as a sequence of
// statements, each self-wrapped in its own mark/limit.
func (c *Compiler) compileBlockChildren(block *ast.Node) error {
	for _, stmt := range block.Args {
		if err := c.compileStatement(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStatement(n *ast.Node) error {
	switch n.Kind {
	case ast.KAssign:
		return c.compileAssign(n)
	case ast.KReturn:
		return c.compileReturn(n)
	case ast.KBreak:
		c.emit(bytecode.OpBreak, value.Nil(), n.Line, n.Col)
		return nil
	case ast.KContinue:
		c.emit(bytecode.OpContinue, value.Nil(), n.Line, n.Col)
		return nil
	default:
		c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
		if err := c.compileExpr(n); err != nil {
			return err
		}
		c.emit(bytecode.OpLimit, value.Int(0), n.Line, n.Col)
		return nil
	}
}

// compileAssign implements "a[,b...] = x[,y...]": values stream onto the
// stack first, then each target is assigned from its fixed offset within
// the just-opened mark, last, the frame is truncated to exactly
// len(targets) (discarding any surplus from a multi-return final value).
func (c *Compiler) compileAssign(n *ast.Node) error {
	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	for _, v := range n.Values {
		if err := c.compileExpr(v); err != nil {
			return err
		}
	}
	for i, t := range n.Targets {
		if err := c.compileAssignTarget(t, i); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpLimit, value.Int(int64(len(n.Targets))), n.Line, n.Col)
	return nil
}

// compileAssignTarget writes the value already sitting at mark-relative
// index `idx` into the lvalue `t` describes. A bare name assigns directly;
// an index/field/method chain evaluates its container and key as
// ordinary rvalues, then OP_SETs into it.
func (c *Compiler) compileAssignTarget(t *ast.Node, idx int) error {
	switch t.Kind {
	case ast.KName:
		c.emit(bytecode.OpLit, c.str(t.Name), t.Line, t.Col)
		c.emit(bytecode.OpAssign, value.Int(int64(idx)), t.Line, t.Col)
		return nil
	case ast.KIndex:
		if err := c.compileExprOne(t.Chain); err != nil {
			return err
		}
		if err := c.compileExprOne(t.Left); err != nil {
			return err
		}
		c.emit(bytecode.OpSet, value.Int(int64(idx)), t.Line, t.Col)
		return nil
	case ast.KField:
		if err := c.compileExprOne(t.Chain); err != nil {
			return err
		}
		c.emit(bytecode.OpLit, c.str(t.Name), t.Line, t.Col)
		c.emit(bytecode.OpSet, value.Int(int64(idx)), t.Line, t.Col)
		return nil
	case ast.KGlobalRef:
		// `global = x` is nonsensical; `global.x = y` parses as KField
		// with a KGlobalRef chain and is handled above.
		return c.errf(t, "cannot assign to global table itself")
	default:
		return c.errf(t, "cannot assign to this expression")
	}
}

func (c *Compiler) compileReturn(n *ast.Node) error {
	c.emit(bytecode.OpClean, value.Nil(), n.Line, n.Col)
	for _, v := range n.Values {
		if err := c.compileExpr(v); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpReturn, value.Nil(), n.Line, n.Col)
	return nil
}

// compileExprOne forces exactly one value: used wherever the VM expects a
// scalar (binary/unary operands, conditions, index keys). Kinds that can
// naturally produce more than one value (calls, if-as-ternary) get their
// own mark/limit(1); everything else already produces exactly one.
func (c *Compiler) compileExprOne(n *ast.Node) error {
	switch n.Kind {
	case ast.KCall, ast.KIf:
		c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
		if err := c.compileExpr(n); err != nil {
			return err
		}
		c.emit(bytecode.OpLimit, value.Int(1), n.Line, n.Col)
		return nil
	default:
		return c.compileExpr(n)
	}
}

func (c *Compiler) compileExpr(n *ast.Node) error {
	switch n.Kind {
	case ast.KLiteral, ast.KStringLit:
		c.emit(bytecode.OpLit, n.Item, n.Line, n.Col)
		return nil

	case ast.KInterp:
		for i, part := range n.Parts {
			if err := c.compileExprOne(part); err != nil {
				return err
			}
			if i > 0 {
				c.emit(bytecode.OpConcat, value.Nil(), n.Line, n.Col)
			}
		}
		return nil

	case ast.KGlobalRef:
		c.emit(bytecode.OpGlobal, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KName:
		c.emit(bytecode.OpLit, c.str(n.Name), n.Line, n.Col)
		c.emit(bytecode.OpFind, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KIndex:
		if err := c.compileExprOne(n.Chain); err != nil {
			return err
		}
		if err := c.compileExprOne(n.Left); err != nil {
			return err
		}
		c.emit(bytecode.OpGet, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KField:
		if err := c.compileExprOne(n.Chain); err != nil {
			return err
		}
		c.emit(bytecode.OpLit, c.str(n.Name), n.Line, n.Col)
		c.emit(bytecode.OpGet, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KMethod:
		// unbound method lookup, e.g. as a value rather than a call target
		if err := c.compileExprOne(n.Chain); err != nil {
			return err
		}
		c.emit(bytecode.OpLit, c.str(n.Name), n.Line, n.Col)
		c.emit(bytecode.OpGet, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KCall:
		return c.compileCall(n)

	case ast.KUnary:
		if err := c.compileExprOne(n.Left); err != nil {
			return err
		}
		op, err := unaryOp(token.Kind(n.Item.I))
		if err != nil {
			return c.errf(n, "%v", err)
		}
		c.emit(op, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KBinary:
		if err := c.compileExprOne(n.Left); err != nil {
			return err
		}
		if err := c.compileExprOne(n.Right); err != nil {
			return err
		}
		op, err := binaryOp(token.Kind(n.Item.I))
		if err != nil {
			return c.errf(n, "%v", err)
		}
		c.emit(op, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KAnd:
		if err := c.compileExprOne(n.Left); err != nil {
			return err
		}
		jmp := c.emit(bytecode.OpAnd, value.Nil(), n.Line, n.Col)
		if err := c.compileExprOne(n.Right); err != nil {
			return err
		}
		c.patch(jmp, value.Int(int64(c.chunk.Len())))
		return nil

	case ast.KOr:
		if err := c.compileExprOne(n.Left); err != nil {
			return err
		}
		jmp := c.emit(bytecode.OpOr, value.Nil(), n.Line, n.Col)
		if err := c.compileExprOne(n.Right); err != nil {
			return err
		}
		c.patch(jmp, value.Int(int64(c.chunk.Len())))
		return nil

	case ast.KUnpack:
		if err := c.compileExprOne(n.Left); err != nil {
			return err
		}
		c.emit(bytecode.OpUnpack, value.Nil(), n.Line, n.Col)
		return nil

	case ast.KVector:
		return c.compileVector(n)

	case ast.KMapLit:
		return c.compileMap(n)

	case ast.KIf:
		return c.compileIf(n)

	case ast.KWhile:
		return c.compileWhile(n)

	case ast.KFor:
		return c.compileFor(n)

	case ast.KFunction:
		return c.compileFunction(n)

	case ast.KMulti:
		// a nested block used as an expression (rare: parenthesised
		// blocks are not in the grammar, but defensively support it)
		return c.compileBlockChildren(n)
	}
	return c.errf(n, "compiler: unhandled node kind %d", n.Kind)
}

func unaryOp(k token.Kind) (bytecode.Op, error) {
	switch k {
	case token.Hash:
		return bytecode.OpCount, nil
	case token.Minus:
		return bytecode.OpNeg, nil
	case token.Bang:
		return bytecode.OpNot, nil
	}
	return 0, fmt.Errorf("bad unary operator token %s", k)
}

func binaryOp(k token.Kind) (bytecode.Op, error) {
	switch k {
	case token.Plus:
		return bytecode.OpAdd, nil
	case token.Minus:
		return bytecode.OpSub, nil
	case token.Star:
		return bytecode.OpMul, nil
	case token.Slash:
		return bytecode.OpDiv, nil
	case token.Percent:
		return bytecode.OpMod, nil
	case token.EqEq:
		return bytecode.OpEq, nil
	case token.NotEq:
		return bytecode.OpNe, nil
	case token.Lt:
		return bytecode.OpLt, nil
	case token.Gt:
		return bytecode.OpGt, nil
	case token.Lte:
		return bytecode.OpLte, nil
	case token.Gte:
		return bytecode.OpGte, nil
	case token.Tilde:
		return bytecode.OpMatch, nil
	}
	return 0, fmt.Errorf("bad binary operator token %s", k)
}

// compileCall handles both a plain call (`f(args)`) and a method call
// (`recv:m(args)`, desugared to `m(recv, args)`), using OP_SHUNT/OP_SHIFT
// to keep the callee out of the argument sub-frame while the args compile,
// then bring it back on top for OP_CALL. The MARK it opens around that
// sub-frame is also what the callee's parameter prologue
// (compileFunction) binds params against, via OP_ASSIGN indices relative
// to this exact mark — arrive() captures it as the new frame's MarkBase
// without pushing one of its own. The call therefore closes its own mark
// itself with a LIMIT(-1) (keep everything, just pop the mark) once
// OP_CALL returns, so every caller — a bare statement, compileExprOne,
// compileAssign's value list — sees its own enclosing mark still open
// and collapses the result arity itself, instead of inheriting a phantom
// extra mark from the call.
func (c *Compiler) compileCall(n *ast.Node) error {
	if n.Chain != nil && n.Chain.Kind == ast.KMethod {
		method := n.Chain
		c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
		if err := c.compileExprOne(method.Chain); err != nil {
			return err
		}
		c.emit(bytecode.OpCopy, value.Nil(), n.Line, n.Col)
		c.emit(bytecode.OpLit, c.str(method.Name), n.Line, n.Col)
		c.emit(bytecode.OpGet, value.Nil(), n.Line, n.Col)
		c.emit(bytecode.OpShunt, value.Nil(), n.Line, n.Col)
		for _, a := range n.Args {
			if err := c.compileCallArg(a); err != nil {
				return err
			}
		}
		c.emit(bytecode.OpShift, value.Nil(), n.Line, n.Col)
		c.emit(bytecode.OpCall, value.Nil(), n.Line, n.Col)
		c.emit(bytecode.OpLimit, value.Int(-1), n.Line, n.Col)
		return nil
	}

	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	if err := c.compileExprOne(n.Chain); err != nil {
		return err
	}
	c.emit(bytecode.OpShunt, value.Nil(), n.Line, n.Col)
	for _, a := range n.Args {
		if err := c.compileCallArg(a); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpShift, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpCall, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpLimit, value.Int(-1), n.Line, n.Col)
	return nil
}

// compileCallArg allows a trailing `...vec` argument to spread into
// however many positional arguments the callee receives; every other
// argument is forced to exactly one value.
func (c *Compiler) compileCallArg(a *ast.Node) error {
	if a.Kind == ast.KUnpack {
		return c.compileExpr(a)
	}
	return c.compileExprOne(a)
}

func (c *Compiler) compileVector(n *ast.Node) error {
	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	for _, el := range n.Args {
		if err := c.compileCallArg(el); err != nil {
			return err
		}
	}
	c.emit(bytecode.OpVector, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpLimit, value.Int(1), n.Line, n.Col)
	return nil
}

// compileMap compiles each key/value pair in its own nested mark, so
// OP_ASSIGN's index is always 0 relative to that pair's mark; the pair's
// LIMIT 0 then drops the value once it has been written into the
// map-under-construction. The peephole pass turns each pair's "LIT k ;
// ASSIGN 0" into ASSIGNL; the ASSIGNP rule does not match a pair, because
// the value's code sits between the pair's MARK and its ASSIGNL.
func (c *Compiler) compileMap(n *ast.Node) error {
	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpMap, value.Nil(), n.Line, n.Col)
	for i := range n.Keys {
		c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
		if err := c.compileExprOne(n.Vals[i]); err != nil {
			return err
		}
		key := n.Keys[i]
		c.emit(bytecode.OpLit, key.Item, key.Line, key.Col)
		c.emit(bytecode.OpAssign, value.Int(0), n.Line, n.Col)
		c.emit(bytecode.OpLimit, value.Int(0), n.Line, n.Col)
	}
	c.emit(bytecode.OpUnmap, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpLimit, value.Int(1), n.Line, n.Col)
	return nil
}

// compileIf has no mark/limit of its own: it is a ternary-style
// expression whose stack effect (0 or more values, taken-branch
// dependent) is cleaned up by whatever encloses it — a statement's
// MARK/LIMIT(0), an assign's MARK/LIMIT(n), or compileExprOne's
// MARK/LIMIT(1).
func (c *Compiler) compileIf(n *ast.Node) error {
	if err := c.compileExprOne(n.Cond); err != nil {
		return err
	}
	jf := c.emit(bytecode.OpJfalse, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpDrop, value.Nil(), n.Line, n.Col)
	if err := c.compileBlockChildren(n.Then); err != nil {
		return err
	}
	if n.Else != nil {
		jmp := c.emit(bytecode.OpJmp, value.Nil(), n.Line, n.Col)
		c.patch(jf, value.Int(int64(c.chunk.Len())))
		c.emit(bytecode.OpDrop, value.Nil(), n.Line, n.Col)
		if err := c.compileBlockChildren(n.Else); err != nil {
			return err
		}
		c.patch(jmp, value.Int(int64(c.chunk.Len())))
	} else {
		c.patch(jf, value.Int(int64(c.chunk.Len())))
	}
	return nil
}

func (c *Compiler) compileWhile(n *ast.Node) error {
	c.loopDepth++
	defer func() { c.loopDepth-- }()

	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	loop := c.emit(bytecode.OpLoop, value.Nil(), n.Line, n.Col)
	begin := c.chunk.Len()
	c.markJump(begin)
	if err := c.compileExprOne(n.Cond); err != nil {
		return err
	}
	iter := c.emit(bytecode.OpJfalse, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpDrop, value.Nil(), n.Line, n.Col)
	if err := c.compileBlockChildren(n.Body); err != nil {
		return err
	}
	c.emit(bytecode.OpJmp, value.Int(int64(begin)), n.Line, n.Col)
	end := c.chunk.Len()
	c.patch(iter, value.Int(int64(end)))
	c.patch(loop, value.Int(int64(end)))
	c.emit(bytecode.OpUnloop, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpLimit, value.Int(0), n.Line, n.Col)
	return nil
}

// compileFor mirrors the original's double-mark loop: the outer mark
// holds the iterable and the induction counter, the inner mark is the
// per-iteration loop frame. OP_FOR's immediate is the same *value.Vector
// the induction-variable names were collected into, with the loop's end
// ip appended to it only after the body compiles — OP_FOR holds that
// vector by reference, so the late append is visible to the already
// emitted instruction.
func (c *Compiler) compileFor(n *ast.Node) error {
	c.loopDepth++
	defer func() { c.loopDepth-- }()

	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	if err := c.compileExprOne(n.Iter); err != nil {
		return err
	}
	c.emit(bytecode.OpLit, value.Int(0), n.Line, n.Col) // loop counter

	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	loop := c.emit(bytecode.OpLoop, value.Nil(), n.Line, n.Col)
	begin := c.chunk.Len()
	c.markJump(begin)

	vars := value.NewVector()
	for _, v := range n.Vars {
		vars.Push(c.str(v))
	}
	c.emit(bytecode.OpFor, value.VecItem(vars), n.Line, n.Col)

	if err := c.compileBlockChildren(n.Body); err != nil {
		return err
	}
	c.emit(bytecode.OpJmp, value.Int(int64(begin)), n.Line, n.Col)
	vars.Push(value.Int(int64(c.chunk.Len())))

	end := c.chunk.Len()
	c.patch(loop, value.Int(int64(end)))
	c.emit(bytecode.OpUnloop, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpLimit, value.Int(0), n.Line, n.Col)
	c.emit(bytecode.OpLimit, value.Int(0), n.Line, n.Col)
	return nil
}

// compileFunction compiles a function literal: the body is skipped over
// at runtime by the leading JMP, and entered only via CALL landing on the
// Subroutine ip recorded at `entry`. A named function also assigns its
// own Subroutine value to its name within the function-definition's own
// mark, before the jump — so `function fib(n) ... end` both defines and
// binds fib in one expression.
func (c *Compiler) compileFunction(n *ast.Node) error {
	c.emit(bytecode.OpMark, value.Nil(), n.Line, n.Col)
	entry := c.emit(bytecode.OpLit, value.Nil(), n.Line, n.Col)

	if n.Name != "" {
		c.emit(bytecode.OpLit, c.str(n.Name), n.Line, n.Col)
		c.emit(bytecode.OpAssign, value.Int(0), n.Line, n.Col)
	}

	jump := c.emit(bytecode.OpJmp, value.Nil(), n.Line, n.Col)
	bodyStart := c.chunk.Len()
	c.markJump(bodyStart)
	c.chunk.Patch(entry, value.Sub(bodyStart))

	c.emit(bytecode.OpPid, value.Int(n.Path.ID), n.Line, n.Col)
	for _, id := range n.Path.IDs {
		c.emit(bytecode.OpPid, value.Int(id), n.Line, n.Col)
	}

	for i, param := range n.Params {
		c.emit(bytecode.OpLit, c.str(param), n.Line, n.Col)
		c.emit(bytecode.OpAssign, value.Int(int64(i)), n.Line, n.Col)
	}
	c.emit(bytecode.OpClean, value.Nil(), n.Line, n.Col)

	if err := c.compileBlockChildren(n.Body); err != nil {
		return err
	}

	// dead code unless control fell off the end without an explicit return
	c.emit(bytecode.OpClean, value.Nil(), n.Line, n.Col)
	c.emit(bytecode.OpReturn, value.Nil(), n.Line, n.Col)
	c.patch(jump, value.Int(int64(c.chunk.Len())))

	c.emit(bytecode.OpLimit, value.Int(1), n.Line, n.Col)
	return nil
}
