package u_string

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain passes through", "  hello world ", "hello world"},
		{"tags stripped", "<p>Hello <b>Bob</b></p><p>Order&nbsp;#5</p>", "Hello Bob\nOrder #5"},
		{"style dropped", "<html><style>p{color:red}</style><body>Hi</body></html>", "Hi"},
		{"breaks", "<div>a<br>b</div>", "a\nb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Errorf("Truncate = %q", got)
	}
	if got := Truncate("abc", 0); got != "" {
		t.Errorf("Truncate = %q", got)
	}
}

func TestFirstJSONObject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Sure! {"a":1} hope this helps`, `{"a":1}`},
		{`{"a":{"b":"}"}} {"c":2}`, `{"a":{"b":"}"}}`},
		{`{"a":"\"{"}`, `{"a":"\"{"}`},
		{`no json here`, ``},
		{`{"open":`, ``},
	}

	for _, tt := range tests {
		if got := FirstJSONObject(tt.in); got != tt.want {
			t.Errorf("FirstJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
