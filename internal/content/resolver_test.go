package content

import (
	"strings"
	"testing"
)

func TestResolver_Defaults(t *testing.T) {
	r, err := NewResolver(nil)
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}

	data := TemplateData{
		CustomerName: "Jo",
		ProductName:  "Trail Camera",
		ReviewURL:    "https://shop.example/review/42",
		ProductURL:   "https://shop.example/cam",
	}

	for _, offset := range []int{3, 7, 14, 30} {
		c, err := r.Resolve(offset, data)
		if err != nil {
			t.Fatalf("resolve day %d: %v", offset, err)
		}
		if c.Subject == "" || c.HTMLBody == "" {
			t.Errorf("day %d produced empty content", offset)
		}
		if !strings.Contains(c.Subject, "Trail Camera") {
			t.Errorf("day %d subject missing product name: %q", offset, c.Subject)
		}
		if !strings.Contains(c.HTMLBody, "Jo") {
			t.Errorf("day %d body missing customer name", offset)
		}
		if !strings.Contains(c.HTMLBody, data.ReviewURL) {
			t.Errorf("day %d body missing review link", offset)
		}
	}
}

func TestResolver_UnknownOffset(t *testing.T) {
	r, err := NewResolver(nil)
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}

	if _, err := r.Resolve(5, TemplateData{}); err == nil {
		t.Error("expected error for unknown offset")
	}
}

func TestResolver_Overrides(t *testing.T) {
	r, err := NewResolver(map[int]Template{
		7: {
			Subject: "Custom: {{.ProductName}}",
			Body:    "<p>Hello {{.CustomerName}}</p>",
		},
	})
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}

	c, err := r.Resolve(7, TemplateData{CustomerName: "Jo", ProductName: "Trail Camera"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if c.Subject != "Custom: Trail Camera" {
		t.Errorf("override subject not used: %q", c.Subject)
	}

	// other offsets keep the defaults
	c, err = r.Resolve(3, TemplateData{CustomerName: "Jo", ProductName: "Trail Camera"})
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if strings.HasPrefix(c.Subject, "Custom:") {
		t.Error("day-3 should keep its default template")
	}
}

func TestResolver_BodyEscapesHTML(t *testing.T) {
	r, err := NewResolver(nil)
	if err != nil {
		t.Fatalf("build resolver: %v", err)
	}

	c, err := r.Resolve(3, TemplateData{CustomerName: "<script>x</script>", ProductName: "Cam"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if strings.Contains(c.HTMLBody, "<script>") {
		t.Error("body must escape customer-supplied HTML")
	}
}

func TestResolver_InvalidOverride(t *testing.T) {
	_, err := NewResolver(map[int]Template{
		3: {Subject: "{{.Broken", Body: "x"},
	})
	if err == nil {
		t.Error("expected parse error for malformed override")
	}
}
