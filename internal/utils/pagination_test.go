package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7}, // no trim
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestPageParams_Parse(t *testing.T) {
	p := PageParams{DefaultSize: 10, MaxSize: 50}
	cases := []struct {
		page, size         string
		wantPage, wantSize int
	}{
		{"", "", 1, 10},
		{"3", "20", 3, 20},
		{"0", "0", 1, 1},
		{"-2", "-5", 1, 1},
		{"x", "500", 1, 50},
	}
	for _, tc := range cases {
		page, size := p.Parse(tc.page, tc.size)
		if page != tc.wantPage || size != tc.wantSize {
			t.Fatalf("Parse(%q, %q) = (%d, %d); want (%d, %d)", tc.page, tc.size, page, size, tc.wantPage, tc.wantSize)
		}
	}

	if _, size := (PageParams{DefaultSize: 10}).Parse("", "1000"); size != 1000 {
		t.Fatalf("MaxSize 0 should not clamp, got %d", size)
	}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		total, page, size         int
		wantStart, wantEnd, pages int
	}{
		{0, 1, 10, 0, 0, 0},
		{3, 1, 2, 0, 2, 2},
		{3, 2, 2, 2, 3, 2},
		{3, 9, 2, 3, 3, 2},
		{10, 1, 10, 0, 10, 1},
		{5, 1, 0, 0, 0, 0},
	}
	for _, tc := range cases {
		s, e, p := Window(tc.total, tc.page, tc.size)
		if s != tc.wantStart || e != tc.wantEnd || p != tc.pages {
			t.Fatalf("Window(%d, %d, %d) = (%d, %d, %d); want (%d, %d, %d)",
				tc.total, tc.page, tc.size, s, e, p, tc.wantStart, tc.wantEnd, tc.pages)
		}
	}
}
