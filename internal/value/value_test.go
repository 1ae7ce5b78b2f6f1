package value

import (
	"testing"

	"inkvm/internal/listtable"
	"inkvm/internal/storyimage"
	"inkvm/internal/strtable"
)

func newTestTables() (*strtable.Table, *listtable.Table) {
	strs := strtable.New(16)
	lists := listtable.New([]storyimage.ListMeta{
		{Name: "colors", Begin: 0, FlagNames: []string{"red", "green", "blue"}},
	})
	return strs, lists
}

func TestArithIntAndFloatPromotion(t *testing.T) {
	strs, lists := newTestTables()

	tests := []struct {
		name string
		op   ArithOp
		a, b Value
		want Value
	}{
		{"int+int", OpAdd, Int(2), Int(3), Int(5)},
		{"int+float promotes", OpAdd, Int(2), Float(0.5), Float(2.5)},
		{"uint+uint", OpAdd, Uint(2), Uint(3), Uint(5)},
		{"int eq int", OpEq, Int(4), Int(4), Bool(true)},
		{"int lt int false", OpLt, Int(4), Int(4), Bool(false)},
		{"bool and", OpAnd, Bool(true), Bool(false), Bool(false)},
		{"bool or", OpOr, Bool(false), Bool(true), Bool(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Arith(tt.op, tt.a, tt.b, strs, lists)
			if err != nil {
				t.Fatalf("Arith: %v", err)
			}
			if got.Kind != tt.want.Kind {
				t.Fatalf("kind = %v, want %v", got.Kind, tt.want.Kind)
			}
			switch tt.want.Kind {
			case KindInt32:
				if got.Int != tt.want.Int {
					t.Errorf("Int = %d, want %d", got.Int, tt.want.Int)
				}
			case KindUint32:
				if got.Uint != tt.want.Uint {
					t.Errorf("Uint = %d, want %d", got.Uint, tt.want.Uint)
				}
			case KindFloat32:
				if got.Float != tt.want.Float {
					t.Errorf("Float = %v, want %v", got.Float, tt.want.Float)
				}
			case KindBool:
				if got.Bool != tt.want.Bool {
					t.Errorf("Bool = %v, want %v", got.Bool, tt.want.Bool)
				}
			}
		})
	}
}

func TestArithStringConcatAndEquality(t *testing.T) {
	strs, lists := newTestTables()

	a, err := strs.Create("hello ")
	if err != nil {
		t.Fatal(err)
	}
	b, err := strs.Create("world")
	if err != nil {
		t.Fatal(err)
	}

	sum, err := Arith(OpAdd, AllocatedString(a), AllocatedString(b), strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Stringify(sum, strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello world" {
		t.Errorf("concat = %q, want %q", got, "hello world")
	}

	eq, err := Arith(OpEq, StaticString("same"), StaticString("same"), strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if !eq.Bool {
		t.Errorf("expected equal static strings to compare equal")
	}
}

func TestIsEqualNoneOnlyEqualsItself(t *testing.T) {
	strs, lists := newTestTables()

	eq, err := IsEqual(None, None, strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if !eq {
		t.Error("None should equal None")
	}

	eq, err = IsEqual(None, Int(0), strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if eq {
		t.Error("None should not equal Int(0)")
	}
}

func TestStringifyScalarKinds(t *testing.T) {
	strs, lists := newTestTables()

	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"none", None, ""},
		{"bool true", Bool(true), "true"},
		{"bool false", Bool(false), "false"},
		{"int", Int(-7), "-7"},
		{"uint", Uint(42), "42"},
		{"newline", Newline, "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Stringify(tt.v, strs, lists)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("Stringify = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStringifyListFlagAsSingletonList(t *testing.T) {
	strs, lists := newTestTables()

	flag, ok := lists.ToFlag("red")
	if !ok {
		t.Fatal("expected red flag to resolve")
	}
	got, err := Stringify(ListFlag(flag), strs, lists)
	if err != nil {
		t.Fatal(err)
	}
	if got != "red" {
		t.Errorf("Stringify(list_flag) = %q, want %q", got, "red")
	}
}
