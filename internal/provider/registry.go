package provider

import "fmt"

// Kind selects the wire envelope an adapter speaks.
type Kind string

const (
	KindGemini    Kind = "gemini"
	KindOpenAI    Kind = "openai"
	KindAnthropic Kind = "anthropic"
)

// Descriptor is one row of the provider table: everything needed to build an
// adapter lives in configuration, not in dispatch logic. Adding a provider
// means adding a descriptor, never touching a switch statement elsewhere.
type Descriptor struct {
	ID      string
	Kind    Kind
	APIKey  string
	BaseURL string
	Model   string
}

// knownBaseURLs maps OpenAI-compatible provider IDs to their base URLs, used
// when a descriptor leaves BaseURL empty.
var knownBaseURLs = map[string]string{
	"openai":   "https://api.openai.com/v1",
	"deepseek": "https://api.deepseek.com",
	"minimax":  "https://api.minimax.chat/v1",
	"kimi":     "https://api.moonshot.cn/v1",
	"qwen":     "https://dashscope.aliyuncs.com/compatible-mode/v1",
	"groq":     "https://api.groq.com/openai/v1",
}

// Build constructs the adapter described by d.
func (d Descriptor) Build() (Provider, error) {
	if d.ID == "" {
		return nil, fmt.Errorf("provider descriptor missing id")
	}
	if d.APIKey == "" {
		return nil, fmt.Errorf("provider %q: api key not configured", d.ID)
	}

	switch d.Kind {
	case KindGemini:
		return NewGeminiProvider(d.APIKey, d.BaseURL, d.Model), nil
	case KindAnthropic:
		return NewAnthropicProvider(d.APIKey, d.Model), nil
	case KindOpenAI, "":
		baseURL := d.BaseURL
		if baseURL == "" {
			u, ok := knownBaseURLs[d.ID]
			if !ok {
				return nil, fmt.Errorf("provider %q: base_url not configured and not a known provider", d.ID)
			}
			baseURL = u
		}
		return NewOpenAIProvider(d.ID, d.APIKey, baseURL, d.Model), nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", d.ID, d.Kind)
	}
}

// Registry holds the configured providers in a stable cycle order.
type Registry struct {
	order []string
	byID  map[string]Provider
}

// NewRegistry builds adapters for every descriptor. Cycle order follows the
// descriptor order; duplicate IDs are rejected.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, fmt.Errorf("no providers configured")
	}

	r := &Registry{byID: make(map[string]Provider, len(descs))}
	for _, d := range descs {
		if _, dup := r.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", d.ID)
		}
		p, err := d.Build()
		if err != nil {
			return nil, err
		}
		r.byID[d.ID] = p
		r.order = append(r.order, d.ID)
	}
	return r, nil
}

// Get returns the adapter for id.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	return p, nil
}

// Has reports whether id is configured.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs returns the provider ids in cycle order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// First returns the first configured provider id.
func (r *Registry) First() string { return r.order[0] }

// Next returns the id after current in the cycle, wrapping around. An
// unknown current id resets to the first provider.
func (r *Registry) Next(current string) string {
	for i, id := range r.order {
		if id == current {
			return r.order[(i+1)%len(r.order)]
		}
	}
	return r.order[0]
}
