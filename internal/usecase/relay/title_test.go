package relay

import "testing"

func TestExtractTitle(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "кавычки и хвост", in: `"Foo Bar" - https://t.co/abc123 #tag`, want: "Foo Bar"},
		{name: "без разделителя", in: `"Foo Bar" https://t.co/abc123`, want: `"Foo Bar" https://t.co/abc123`},
		{name: "без кавычек", in: "Arrival - https://t.co/x", want: "Arrival"},
		{name: "типографские", in: "“Dune” - https://t.co/x", want: "Dune"},
		{name: "ёлочки", in: "«Солярис» - https://t.co/x", want: "Солярис"},
		{name: "один слой", in: `""Nested"" - x`, want: `"Nested"`},
		{name: "непарные", in: `"Half - x`, want: `"Half`},
		{name: "только кавычка", in: `" - x`, want: `"`},
		{name: "первый разделитель", in: "A - B - C", want: "A"},
		{name: "пробелы", in: `   "Spaced"   - x`, want: "Spaced"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractTitle(tc.in, " - "); got != tc.want {
				t.Fatalf("ExtractTitle(%q) = %q, ожидали %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractTitleEmptySeparator(t *testing.T) {
	if got := ExtractTitle("as is - x", ""); got != "as is - x" {
		t.Fatalf("пустой разделитель не должен менять текст, получили %q", got)
	}
}
