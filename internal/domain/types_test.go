package domain

import (
	"math"
	"testing"
)

func TestCartSubtotal(t *testing.T) {
	cases := []struct {
		name  string
		items []CartItem
		want  int64
		ok    bool
	}{
		{name: "empty", ok: true},
		{
			name:  "sums lines",
			items: []CartItem{{Price: 150000, Quantity: 2}, {Price: 45000, Quantity: 1}},
			want:  345000,
			ok:    true,
		},
		{name: "free line", items: []CartItem{{Price: 0, Quantity: 3}}, ok: true},
		{name: "line overflows", items: []CartItem{{Price: 1 << 62, Quantity: 4}}},
		{name: "running total overflows", items: []CartItem{{Price: math.MaxInt64, Quantity: 1}, {Price: 1, Quantity: 1}}},
		{name: "negative price", items: []CartItem{{Price: -1, Quantity: 1}}},
		{name: "negative quantity", items: []CartItem{{Price: 1000, Quantity: -2}}},
		{name: "max fits", items: []CartItem{{Price: math.MaxInt64, Quantity: 1}}, want: math.MaxInt64, ok: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := CartSubtotal(tc.items)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if ok && got != tc.want {
				t.Fatalf("expected subtotal %d, got %d", tc.want, got)
			}
		})
	}
}
