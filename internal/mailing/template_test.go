package mailing

import "testing"

func TestPersonalize(t *testing.T) {
	ts := NewTemplateService()

	tests := []struct {
		name     string
		tmpl     string
		bindings map[string]interface{}
		want     string
	}{
		{
			"name and email",
			"Hi {{name}}, we sent this to {{email}}.",
			map[string]interface{}{"name": "Ada", "email": "ada@example.com"},
			"Hi Ada, we sent this to ada@example.com.",
		},
		{
			"spaced tokens",
			"Hi {{ name }}!",
			map[string]interface{}{"name": "Ada"},
			"Hi Ada!",
		},
		{
			"missing binding renders empty",
			"Hi {{name}}!",
			map[string]interface{}{},
			"Hi !",
		},
		{
			"no tokens untouched",
			"<p>plain</p>",
			map[string]interface{}{"name": "Ada"},
			"<p>plain</p>",
		},
		{
			"broken template falls back to literal replacement",
			"Hi {{name}}, {% if %}",
			map[string]interface{}{"name": "Ada"},
			"Hi Ada, {% if %}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ts.Personalize(tt.tmpl, tt.bindings); got != tt.want {
				t.Errorf("Personalize(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestPersonalizeCachesTemplates(t *testing.T) {
	ts := NewTemplateService()
	tmpl := "Hello {{name}}"

	first := ts.Personalize(tmpl, map[string]interface{}{"name": "A"})
	second := ts.Personalize(tmpl, map[string]interface{}{"name": "B"})
	if first != "Hello A" || second != "Hello B" {
		t.Errorf("cached renders = %q, %q", first, second)
	}
}
