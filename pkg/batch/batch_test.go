package batch

import (
	"reflect"
	"testing"
)

func collect[T any](items []T, size int) [][]T {
	var out [][]T
	for b := range Slices(items, size) {
		out = append(out, b)
	}
	return out
}

func TestSlices(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{
			name:  "five by two",
			items: []int{1, 2, 3, 4, 5},
			size:  2,
			want:  [][]int{{1, 2}, {3, 4}, {5}},
		},
		{
			name:  "exact multiple",
			items: []int{1, 2, 3, 4},
			size:  2,
			want:  [][]int{{1, 2}, {3, 4}},
		},
		{
			name:  "size larger than input",
			items: []int{7, 8},
			size:  80,
			want:  [][]int{{7, 8}},
		},
		{
			name:  "empty input",
			items: nil,
			size:  3,
			want:  nil,
		},
		{
			name:  "non-positive size",
			items: []int{1, 2, 3},
			size:  0,
			want:  [][]int{{1, 2, 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collect(tt.items, tt.size)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Slices(%v, %d) = %v, want %v", tt.items, tt.size, got, tt.want)
			}
			if n := Count(len(tt.items), tt.size); n != len(tt.want) {
				t.Errorf("Count(%d, %d) = %d, want %d", len(tt.items), tt.size, n, len(tt.want))
			}
		})
	}
}

func TestSlicesCoverEveryItemOnce(t *testing.T) {
	items := make([]int, 257)
	for i := range items {
		items[i] = i
	}

	for size := 1; size <= 30; size++ {
		var flat []int
		batches := collect(items, size)
		for i, b := range batches {
			if len(b) > size {
				t.Fatalf("size %d: batch %d has %d items", size, i, len(b))
			}
			if len(b) == 0 {
				t.Fatalf("size %d: batch %d is empty", size, i)
			}
			flat = append(flat, b...)
		}
		if !reflect.DeepEqual(flat, items) {
			t.Fatalf("size %d: concatenation differs from input", size)
		}
	}
}

func TestSlicesStopsEarly(t *testing.T) {
	seen := 0
	for range Slices([]string{"a", "b", "c", "d"}, 1) {
		seen++
		if seen == 2 {
			break
		}
	}
	if seen != 2 {
		t.Errorf("expected iteration to stop after 2 batches, got %d", seen)
	}
}

func TestSlicesDoNotAliasTail(t *testing.T) {
	items := []int{1, 2, 3, 4}
	var first []int
	for b := range Slices(items, 2) {
		first = b
		break
	}
	first = append(first, 99)
	if items[2] != 3 {
		t.Errorf("appending to a batch overwrote the next batch: %v", items)
	}
	_ = first
}
