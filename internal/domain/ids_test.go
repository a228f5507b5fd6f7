package domain

import "testing"

func TestStripID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "8:alice", want: "alice"},
		{in: "28:BOTID", want: "BOTID"},
		{in: "19:abc@thread.skype", want: "abc@thread.skype"},
		{in: "alice", want: "alice"},
		{in: "live:alice", want: "live:alice"},
		{in: ":alice", want: ":alice"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := StripID(tt.in); got != tt.want {
			t.Fatalf("StripID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		in   string
		want IDKind
	}{
		{in: "8:alice", want: IDUser},
		{in: "28:BOTID", want: IDBot},
		{in: "19:room@thread.skype", want: IDRoom},
		{in: "alice", want: IDUnknown},
	}
	for _, tt := range tests {
		if got := KindOf(tt.in); got != tt.want {
			t.Fatalf("KindOf(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSameID(t *testing.T) {
	if !SameID("28:BOTID", "BOTID") {
		t.Fatal("ожидали совпадение с префиксом и без")
	}
	if SameID("", "") {
		t.Fatal("пустые идентификаторы не должны совпадать")
	}
	if SameID("8:bob", "8:alice") {
		t.Fatal("разные идентификаторы не должны совпадать")
	}
}
