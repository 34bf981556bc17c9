package types

import (
	"sync"
	"testing"
)

func TestInternDedup(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	a := in.Tuple(b.I64, in.Ref(b.Str, false))
	c := in.Tuple(b.I64, in.Ref(b.Str, false))
	if a != c {
		t.Fatalf("structurally equal tuples got different ids: %d vs %d", a, c)
	}
	if in.Ref(b.Str, false) == in.Ref(b.Str, true) {
		t.Fatal("mutability must be part of identity")
	}
	if in.Tuple() != b.Unit {
		t.Fatal("empty tuple must be unit")
	}
}

func TestInternConcurrent(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	const workers = 8
	results := make([][]TypeID, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ids := make([]TypeID, 0, 200)
			for i := uint32(0); i < 200; i++ {
				ids = append(ids, in.Named(i, b.I32, in.Array(b.U8, int64(i))))
			}
			results[w] = ids
		}(w)
	}
	wg.Wait()
	for w := 1; w < workers; w++ {
		for i := range results[0] {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d saw id %d for slot %d, worker 0 saw %d", w, results[w][i], i, results[0][i])
			}
		}
	}
	for _, id := range results[0] {
		if in.Kind(id) != KindNamed {
			t.Fatalf("id %d does not resolve to a named type", id)
		}
	}
}

func TestMapAndSubst(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	param := in.Param(7, 0)
	fn := in.Fn([]TypeID{param, in.Ref(param, true)}, param)
	got := in.SubstParams(fn, 7, []TypeID{b.Str})
	want := in.Fn([]TypeID{b.Str, in.Ref(b.Str, true)}, b.Str)
	if got != want {
		t.Fatalf("SubstParams = %s, want %s", Printer{In: in}.String(got), Printer{In: in}.String(want))
	}
	if in.SubstParams(fn, 8, []TypeID{b.Str}) != fn {
		t.Fatal("params of another owner must be untouched")
	}
	if !in.HasVars(in.Tuple(b.Bool, in.Var(3))) || in.HasVars(want) {
		t.Fatal("HasVars is wrong")
	}
}

func TestPrinter(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	p := Printer{In: in}
	cases := []struct {
		id   TypeID
		want string
	}{
		{in.Ref(b.I64, true), "&mut i64"},
		{in.Tuple(b.Bool, b.Char), "(bool, char)"},
		{in.Array(b.U8, 4), "[u8; 4]"},
		{in.Array(b.U8, DynamicLen), "[u8]"},
		{in.Fn([]TypeID{b.I64}, b.Unit), "fn(i64) -> ()"},
		{in.Intern(MakeRefIn(RegionStatic, b.Str, false)), "&'static str"},
		{b.Error, "{error}"},
	}
	for _, c := range cases {
		if got := p.String(c.id); got != c.want {
			t.Fatalf("String(%d) = %q, want %q", c.id, got, c.want)
		}
	}
}
