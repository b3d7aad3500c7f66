package markdown

import (
	"errors"
	"strings"
	"testing"
)

func TestConvert_Structure(t *testing.T) {
	html := `<html><head><title>t</title><style>body{color:red}</style></head>
<body>
<nav><a href="/home">Home</a></nav>
<h1>Getting Started</h1>
<p>Read the <a href="/docs/install">install guide</a> and be <strong>careful</strong>.</p>
<ul><li>one</li><li>two</li></ul>
<script>alert("x")</script>
<footer>Copyright footer</footer>
</body></html>`

	md, err := Converter{}.Convert(html, "https://example.com/start")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wants := []string{
		"# Getting Started",
		"[install guide](https://example.com/docs/install)",
		"**careful**",
		"- one",
		"- two",
	}
	for _, want := range wants {
		if !strings.Contains(md, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, md)
		}
	}

	unwanted := []string{"alert", "color:red", "Copyright footer", "Home"}
	for _, bad := range unwanted {
		if strings.Contains(md, bad) {
			t.Errorf("expected %q to be stripped, got:\n%s", bad, md)
		}
	}

	if md != strings.TrimSpace(md) {
		t.Errorf("expected trimmed output")
	}
}

func TestConvert_Malformed(t *testing.T) {
	md, err := Converter{}.Convert(`<div><p>unclosed paragraph <b>bold text`, "https://example.com")
	if err != nil {
		t.Fatalf("malformed HTML should convert best effort, got %v", err)
	}
	if !strings.Contains(md, "unclosed paragraph") {
		t.Errorf("expected text to survive, got %q", md)
	}
}

func TestConvert_Empty(t *testing.T) {
	inputs := []string{
		"",
		"<html><body></body></html>",
		"<html><body><script>var a = 1;</script><nav>menu</nav></body></html>",
	}

	for _, in := range inputs {
		_, err := Converter{}.Convert(in, "https://example.com")
		if err == nil {
			t.Errorf("expected error for %q", in)
			continue
		}

		var convErr *ConversionError
		if !errors.As(err, &convErr) {
			t.Errorf("expected *ConversionError, got %T", err)
		}
		if !errors.Is(err, ErrConversion) || !errors.Is(err, ErrEmptyOutput) {
			t.Errorf("expected ErrConversion and ErrEmptyOutput, got %v", err)
		}
	}
}

func TestConvert_InvalidPageURL(t *testing.T) {
	md, err := Converter{}.Convert(`<p>See <a href="/x">x</a></p>`, "::not a url")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(md, "See") {
		t.Errorf("expected text, got %q", md)
	}
}

func TestConvert_Readability(t *testing.T) {
	body := strings.Repeat("Go routines are cheap and channels connect them in a pipeline. ", 30)
	html := `<html><head><title>Concurrency</title></head><body>
<div class="header">Site header</div>
<article><h2>Concurrency in Go</h2><p>` + body + `</p><p>` + body + `</p></article>
</body></html>`

	md, err := Converter{Readability: true}.Convert(html, "https://blog.example.com/post")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(md, "channels connect them") {
		t.Errorf("expected article text, got:\n%s", md)
	}
}

func TestConvert_ReadabilityFallback(t *testing.T) {
	md, err := Converter{Readability: true}.Convert(`<p>tiny</p>`, "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(md, "tiny") {
		t.Errorf("expected fallback to cleaned page, got %q", md)
	}
}

func TestConvert_RelativeLinks(t *testing.T) {
	html := `<p><a href="next.html">next</a> <a href="../up.html">up</a> <a href="/root.html">root</a>
<a href="https://other.example/x">other</a> <img src="img/fig.png" alt="fig"></p>`

	md, err := Converter{}.Convert(html, "https://x.example/docs/guide/page.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wants := []string{
		"[next](https://x.example/docs/guide/next.html)",
		"[up](https://x.example/docs/up.html)",
		"[root](https://x.example/root.html)",
		"[other](https://other.example/x)",
		"![fig](https://x.example/docs/guide/img/fig.png)",
	}
	for _, want := range wants {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q, got:\n%s", want, md)
		}
	}
}
