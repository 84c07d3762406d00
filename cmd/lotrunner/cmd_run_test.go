package main

import (
	"reflect"
	"testing"
)

func TestParseLotSelection(t *testing.T) {
	set := func(nums ...int) map[int]bool {
		m := make(map[int]bool)
		for _, n := range nums {
			m[n] = true
		}
		return m
	}

	tests := []struct {
		name    string
		expr    string
		want    map[int]bool
		wantErr bool
	}{
		{name: "all keyword", expr: "all", want: nil},
		{name: "all uppercase", expr: "ALL", want: nil},
		{name: "empty means all", expr: "", want: nil},
		{name: "single lot", expr: "3", want: set(3)},
		{name: "range", expr: "1-5", want: set(1, 2, 3, 4, 5)},
		{name: "range plus single", expr: "1-3,7", want: set(1, 2, 3, 7)},
		{name: "spaces tolerated", expr: " 2 , 4 - 5 ", want: set(2, 4, 5)},
		{name: "overlapping ranges dedupe", expr: "1-3,2-4", want: set(1, 2, 3, 4)},
		{name: "inverted range", expr: "5-1", wantErr: true},
		{name: "zero lot", expr: "0", wantErr: true},
		{name: "not a number", expr: "abc", wantErr: true},
		{name: "only commas", expr: ",,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLotSelection(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseLotSelection(%q) succeeded, want error", tt.expr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLotSelection(%q): %v", tt.expr, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseLotSelection(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}
