// Package sibilant is the public surface of the compiler: entry
// points that read s-expression source and produce bytecode objects
// for the targeted VM, plus bundle storage and a compiled-code cache.
package sibilant

import (
	"io"

	"github.com/ahills/sibilant/internal/ast"
	"github.com/ahills/sibilant/internal/compiler"
	"github.com/ahills/sibilant/internal/config"
	"github.com/ahills/sibilant/internal/datum"
	"github.com/ahills/sibilant/internal/reader"
)

// Options control a compilation. The zero value compiles for the
// default target with shebang skipping enabled.
type Options struct {
	// Filename is recorded in emitted code objects and errors.
	Filename string

	// Target selects the assembler dialect. Unset falls back to the
	// configuration, then to the compiler default.
	Target compiler.Version

	// Config supplies file-level settings such as target version and
	// shebang handling.
	Config *config.Config
}

func (o *Options) filename() string {
	if o == nil {
		return ""
	}
	return o.Filename
}

func (o *Options) target() (compiler.Version, error) {
	if o != nil && !o.Target.IsZero() {
		return o.Target, nil
	}
	if o != nil && o.Config != nil {
		return o.Config.TargetVersion()
	}
	return compiler.DefaultTarget, nil
}

func (o *Options) skipShebang() bool {
	if o == nil {
		return true
	}
	return o.Config.ShouldSkipShebang()
}

// NewEnv returns a compilation environment with the built-in special
// forms bound under __builtins__. Runtime bindings (nil, symbol, cons,
// make-proper, to-tuple, fraction, macro) are the caller's to supply.
func NewEnv() compiler.Env {
	return compiler.Env{"__builtins__": compiler.Builtins()}
}

// CompileFromAST compiles a single composed tree into a code object.
func CompileFromAST(node ast.Node, env compiler.Env, opts *Options) (*compiler.CodeObject, error) {
	target, err := opts.target()
	if err != nil {
		return nil, err
	}

	positions := datum.PosMap{}
	expr := node.Simplify(positions)

	cs := compiler.NewCodeSpace(opts.filename(), positions, target)
	restore := cs.Activate(env)
	defer restore()

	if err := cs.AddExpressionWithReturn(expr); err != nil {
		return nil, err
	}
	return cs.Complete()
}

// CompileFromString compiles the first expression in src.
func CompileFromString(src string, env compiler.Env, opts *Options) (*compiler.CodeObject, error) {
	return compileNext(newSequenceFromString(src, env, opts))
}

// CompileFromStream compiles the first expression read from r.
func CompileFromStream(r io.Reader, env compiler.Env, opts *Options) (*compiler.CodeObject, error) {
	seq, err := CompileAllFromStream(r, env, opts)
	if err != nil {
		return nil, err
	}
	return compileNext(seq)
}

func compileNext(seq *Sequence) (*compiler.CodeObject, error) {
	code, err := seq.Next()
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, seq.stream.Error("no expression in input", nil)
	}
	return code, nil
}

// Sequence lazily compiles one code object per top-level form.
type Sequence struct {
	composer *ast.Composer
	stream   *reader.Stream
	env      compiler.Env
	opts     *Options
}

// Next compiles the next top-level form, returning nil with no error
// once the input is exhausted.
func (s *Sequence) Next() (*compiler.CodeObject, error) {
	node, err := s.composer.Next()
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, nil
	}
	return CompileFromAST(node, s.env, s.opts)
}

// CompileAllFromString returns a lazy sequence over every top-level
// form in src.
func CompileAllFromString(src string, env compiler.Env, opts *Options) *Sequence {
	return newSequenceFromString(src, env, opts)
}

// CompileAllFromStream returns a lazy sequence over every top-level
// form read from r.
func CompileAllFromStream(r io.Reader, env compiler.Env, opts *Options) (*Sequence, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return newSequenceFromString(string(data), env, opts), nil
}

func newSequenceFromString(src string, env compiler.Env, opts *Options) *Sequence {
	stream := reader.NewStringStream(src, opts.filename(), opts.skipShebang())
	return &Sequence{
		composer: ast.NewComposer(reader.New(), stream),
		stream:   stream,
		env:      env,
		opts:     opts,
	}
}
