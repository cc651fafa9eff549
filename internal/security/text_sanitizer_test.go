package security

import "testing"

func TestTextSanitizer_StripsAllTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text unchanged", "Breaking news headline", "Breaking news headline"},
		{"script removed", `<script>alert("xss")</script>Headline`, "Headline"},
		{"bold tag stripped", "<b>Bold</b> headline", "Bold headline"},
		{"anchor stripped", `<a href="https://evil.example">click</a>`, "click"},
		{"img removed", `text<img src="x" onerror="alert(1)">`, "text"},
		{"entities unescaped", "Tom &amp; Jerry", "Tom & Jerry"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して常に同一出力を返すこと（冪等性）を検証
func TestTextSanitizer_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := `<p>News <b>title</b> with <script>bad()</script>markup</p>`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)

	if once != twice {
		t.Errorf("sanitize not idempotent: %q != %q", once, twice)
	}
}

func TestOutboundGuard_ValidateURL(t *testing.T) {
	guard := NewOutboundGuard()

	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"public https", "https://newsapi.org/v2/top-headlines", false},
		{"public http", "http://example.com/feed", false},
		{"empty", "", true},
		{"file scheme", "file:///etc/passwd", true},
		{"localhost", "http://localhost:8080/admin", true},
		{"loopback IP", "http://127.0.0.1/admin", true},
		{"private IP", "http://192.168.1.1/router", true},
		{"metadata IP", "http://169.254.169.254/latest/meta-data/", true},
		{"no host", "https:///path", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := guard.ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}
