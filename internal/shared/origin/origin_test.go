package origin

import "testing"

func TestFromURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://example.com/login?next=/home", "https://example.com"},
		{"https://Example.COM/path", "https://example.com"},
		{"http://localhost:8080/admin", "http://localhost:8080"},
		{"https://accounts.example.com:8443", "https://accounts.example.com:8443"},
	}

	for _, c := range cases {
		got, err := FromURL(c.in)
		if err != nil {
			t.Fatalf("FromURL(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("FromURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFromURLRejectsRelative(t *testing.T) {
	if _, err := FromURL("/login"); err == nil {
		t.Error("expected error for relative URL")
	}
	if _, err := FromURL("not a url at all ::"); err == nil {
		t.Error("expected error for garbage input")
	}
}

func TestHostname(t *testing.T) {
	if got := Hostname("https://News.Example:443/a.js"); got != "news.example" {
		t.Errorf("Hostname = %q, want news.example", got)
	}
	if got := Hostname("%%%"); got != "" {
		t.Errorf("Hostname on garbage = %q, want empty", got)
	}
}
