// Copyright 2025 go-tlang Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package codegen

import (
	"fmt"
	"strings"

	"github.com/ajroetker/go-tlang/codegen/cxx"
	"github.com/ajroetker/go-tlang/expr"
	"github.com/ajroetker/go-tlang/internal/cpuinfo"
	"github.com/ajroetker/go-tlang/snode"
)

// lowering renders vector operations for one mode. A session picks its
// lowering once; the visitor only deals in value names and addresses.
type lowering interface {
	mode() Mode

	// prelude returns directives the source needs before anything else.
	prelude() []string

	vecType(dt snode.DataType) (string, error)
	splat(dt snode.DataType, scalar string) (string, error)
	list(dt snode.DataType, lanes []string) (string, error)
	load(dt snode.DataType, ptr string) (string, error)
	store(dt snode.DataType, ptr, v string) (string, error)
	binary(op expr.Op, dt snode.DataType, a, b string) (string, error)
	convert(from, to snode.DataType, v string) (string, error)

	// adapterSet feeds v into input lane of adapter; adapterGet declares
	// dst from output lane. tmp is a free name for a scratch array.
	adapterSet(adapter string, lane int, dt snode.DataType, v, tmp string) ([]string, error)
	adapterGet(adapter string, lane int, dt snode.DataType, dst, tmp string) ([]string, error)
}

func newLowering(o Options) (lowering, error) {
	switch o.Mode {
	case ModeIntrinsics:
		return newIntrinsicsLowering(o.Target, o.VectorWidth)
	default:
		return vvLowering{width: o.VectorWidth}, nil
	}
}

// scalarLiteral formats a scalar constant of type dt.
func scalarLiteral(dt snode.DataType, i int64, f float64) string {
	switch dt {
	case snode.Float32:
		return cxx.FloatLit(f)
	case snode.Float64:
		return cxx.DoubleLit(f)
	case snode.Int64:
		return fmt.Sprintf("int64(%d)", i)
	default:
		return fmt.Sprint(i)
	}
}

// vvLowering materializes VV<W, T> values and relies on the compiler to
// vectorize their element loops.
type vvLowering struct {
	width int
}

func (vvLowering) mode() Mode        { return ModeVV }
func (vvLowering) prelude() []string { return nil }

func (l vvLowering) vecType(dt snode.DataType) (string, error) {
	return cxx.Template("VV", cxx.Itoa(l.width), dt.String()), nil
}

func (l vvLowering) splat(dt snode.DataType, scalar string) (string, error) {
	t, _ := l.vecType(dt)
	return cxx.Call(t, scalar), nil
}

func (l vvLowering) list(dt snode.DataType, lanes []string) (string, error) {
	t, _ := l.vecType(dt)
	return cxx.Call(t, cxx.BraceList(lanes)), nil
}

func (l vvLowering) load(dt snode.DataType, ptr string) (string, error) {
	t, _ := l.vecType(dt)
	return cxx.Call(t+"::load", ptr), nil
}

func (vvLowering) store(_ snode.DataType, ptr, v string) (string, error) {
	return fmt.Sprintf("%s.store(%s);", v, ptr), nil
}

func (vvLowering) binary(op expr.Op, _ snode.DataType, a, b string) (string, error) {
	switch op {
	case expr.OpAdd:
		return a + " + " + b, nil
	case expr.OpSub:
		return a + " - " + b, nil
	case expr.OpMul:
		return a + " * " + b, nil
	case expr.OpDiv:
		return a + " / " + b, nil
	case expr.OpMin, expr.OpMax:
		return cxx.Call(op.String(), a, b), nil
	}
	return "", fmt.Errorf("%w: %v is not binary", ErrUnsupportedOp, op)
}

func (l vvLowering) convert(_, to snode.DataType, v string) (string, error) {
	t, _ := l.vecType(to)
	return cxx.Call(t, v), nil
}

func (l vvLowering) adapterSet(adapter string, lane int, _ snode.DataType, v, _ string) ([]string, error) {
	return []string{fmt.Sprintf("%s.set(%d, %s);", adapter, lane, v)}, nil
}

func (l vvLowering) adapterGet(adapter string, lane int, dt snode.DataType, dst, _ string) ([]string, error) {
	t, _ := l.vecType(dt)
	return []string{fmt.Sprintf("%s %s = %s.get(%d);", t, dst, adapter, lane)}, nil
}

// intrinsicsLowering emits target intrinsics from the profiles registered
// for one SIMD level and width.
type intrinsicsLowering struct {
	target  cpuinfo.Level
	width   int
	include string
}

func newIntrinsicsLowering(target cpuinfo.Level, width int) (*intrinsicsLowering, error) {
	for _, dt := range []snode.DataType{snode.Float32, snode.Int32} {
		if p, err := SelectProfile(target, dt, width); err == nil {
			return &intrinsicsLowering{target: target, width: width, include: p.Include}, nil
		}
	}
	return nil, fmt.Errorf("%w: target %s has no %d-lane vectors", ErrNoProfile, target, width)
}

func (*intrinsicsLowering) mode() Mode { return ModeIntrinsics }

func (l *intrinsicsLowering) prelude() []string {
	return []string{l.include}
}

func (l *intrinsicsLowering) profile(dt snode.DataType) (*IntrinsicProfile, error) {
	return SelectProfile(l.target, dt, l.width)
}

func (l *intrinsicsLowering) vecType(dt snode.DataType) (string, error) {
	p, err := l.profile(dt)
	if err != nil {
		return "", err
	}
	return p.VecType, nil
}

func (l *intrinsicsLowering) splat(dt snode.DataType, scalar string) (string, error) {
	p, err := l.profile(dt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(p.SetFn, scalar), nil
}

func (l *intrinsicsLowering) list(dt snode.DataType, lanes []string) (string, error) {
	p, err := l.profile(dt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(p.ListFn, strings.Join(lanes, ", ")), nil
}

func (l *intrinsicsLowering) load(dt snode.DataType, ptr string) (string, error) {
	p, err := l.profile(dt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(p.LoadFn, ptr), nil
}

func (l *intrinsicsLowering) store(dt snode.DataType, ptr, v string) (string, error) {
	p, err := l.profile(dt)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(p.StoreFn, ptr, v) + ";", nil
}

func (l *intrinsicsLowering) binary(op expr.Op, dt snode.DataType, a, b string) (string, error) {
	p, err := l.profile(dt)
	if err != nil {
		return "", err
	}
	fn := p.binaryFn(op)
	if fn == "" {
		return "", fmt.Errorf("%w: %v on %s for %s", ErrUnsupportedOp, op, dt, p.Target)
	}
	return fmt.Sprintf(fn, a, b), nil
}

func (l *intrinsicsLowering) convert(from, to snode.DataType, v string) (string, error) {
	p, err := l.profile(from)
	if err != nil {
		return "", err
	}
	fn, ok := p.ConvertFn[to]
	if !ok {
		return "", fmt.Errorf("%w: cast %s to %s for %s", ErrUnsupportedOp, from, to, p.Target)
	}
	return fmt.Sprintf(fn, v), nil
}

// Adapters exchange data through memory, so intrinsics values pass through
// an aligned scratch array.

func (l *intrinsicsLowering) adapterSet(adapter string, lane int, dt snode.DataType, v, tmp string) ([]string, error) {
	st, err := l.store(dt, tmp, v)
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("alignas(64) %s %s[%d];", dt, tmp, l.width),
		st,
		fmt.Sprintf("%s.set(%d, %s);", adapter, lane, tmp),
	}, nil
}

func (l *intrinsicsLowering) adapterGet(adapter string, lane int, dt snode.DataType, dst, tmp string) ([]string, error) {
	t, err := l.vecType(dt)
	if err != nil {
		return nil, err
	}
	ld, err := l.load(dt, tmp)
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("alignas(64) %s %s[%d];", dt, tmp, l.width),
		fmt.Sprintf("%s.get(%d, %s);", adapter, lane, tmp),
		fmt.Sprintf("%s %s = %s;", t, dst, ld),
	}, nil
}
