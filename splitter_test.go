package gosocks

import (
	"slices"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "single",
			raw:  `{"a":1}`,
			want: []string{`{"a":1}`},
		},
		{
			name: "two",
			raw:  `{"a":1}+{"b":2}`,
			want: []string{`{"a":1}`, `{"b":2}`},
		},
		{
			name: "three",
			raw:  `{"a":1}+{"b":2}+{"c":3}`,
			want: []string{`{"a":1}`, `{"b":2}`, `{"c":3}`},
		},
		{
			name: "nested objects",
			raw:  `{"a":{"x":1}}+{"b":{"y":2}}`,
			want: []string{`{"a":{"x":1}}`, `{"b":{"y":2}}`},
		},
		{
			name: "empty",
			raw:  ``,
			want: []string{``},
		},
		{
			name: "not json",
			raw:  `hello`,
			want: []string{`hello`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := slices.Collect(Split(tt.raw))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Split(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSplit_SeparatorInsideString(t *testing.T) {
	// Documented limitation: the separator is not escaped inside values.
	got := slices.Collect(Split(`{"data":"}+{"}`))
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestSplit_StopsEarly(t *testing.T) {
	var got []string
	for part := range Split(`{"a":1}+{"b":2}+{"c":3}`) {
		got = append(got, part)
		if len(got) == 2 {
			break
		}
	}
	if !slices.Equal(got, []string{`{"a":1}`, `{"b":2}`}) {
		t.Errorf("got %q", got)
	}
}
