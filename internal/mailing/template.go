package mailing

import (
	"log"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// TemplateService renders subject and body templates with per-recipient
// bindings. Templates use Liquid syntax; the {{name}} and {{email}} tokens
// the send API documents are plain Liquid variables. Parsed templates are
// cached since one campaign renders the same template for every recipient.
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func NewTemplateService() *TemplateService {
	return &TemplateService{engine: liquid.NewEngine()}
}

// Personalize renders tmpl with the recipient's bindings. A template that
// fails to parse or render falls back to literal token replacement so a
// campaign is never aborted by template syntax; the problem is logged once
// per template.
func (ts *TemplateService) Personalize(tmpl string, bindings map[string]interface{}) string {
	parsed, err := ts.parse(tmpl)
	if err != nil {
		return fallbackReplace(tmpl, bindings)
	}

	out, err := parsed.RenderString(bindings)
	if err != nil {
		log.Printf("[Template] render error: %v", err)
		return fallbackReplace(tmpl, bindings)
	}
	return out
}

func (ts *TemplateService) parse(tmpl string) (*liquid.Template, error) {
	if cached, ok := ts.cache.Load(tmpl); ok {
		return cached.(*liquid.Template), nil
	}

	parsed, err := ts.engine.ParseString(tmpl)
	if err != nil {
		log.Printf("[Template] parse error: %v", err)
		return nil, err
	}
	ts.cache.Store(tmpl, parsed)
	return parsed, nil
}

// fallbackReplace substitutes {{token}} and {{ token }} literally.
func fallbackReplace(tmpl string, bindings map[string]interface{}) string {
	out := tmpl
	for key, value := range bindings {
		str, ok := value.(string)
		if !ok {
			continue
		}
		out = strings.ReplaceAll(out, "{{"+key+"}}", str)
		out = strings.ReplaceAll(out, "{{ "+key+" }}", str)
	}
	return out
}
