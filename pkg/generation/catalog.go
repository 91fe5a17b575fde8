package generation

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultCatalogYAML []byte

// ModelDescriptor describes one selectable generation model.
type ModelDescriptor struct {
	ID              string  `yaml:"id"           json:"id"`
	Name            string  `yaml:"name"         json:"name"`
	Provider        string  `yaml:"provider"     json:"provider"`
	MaxTokens       int     `yaml:"max_tokens"   json:"max_tokens"`
	PricePerKInput  float64 `yaml:"price_input"  json:"price_per_k_input"`
	PricePerKOutput float64 `yaml:"price_output" json:"price_per_k_output"`
	IsActive        bool    `yaml:"active"       json:"is_active"`
}

// Cost is an advisory price estimate for one call.
type Cost struct {
	Input    float64 `json:"input"`
	Output   float64 `json:"output"`
	Total    float64 `json:"total"`
	Currency string  `json:"currency"`
	// Approximate is set when the model is not in the catalog and average
	// prices were used.
	Approximate bool `json:"approximate,omitempty"`
}

type catalogFile struct {
	Currency string            `yaml:"currency"`
	Models   []ModelDescriptor `yaml:"models"`
}

// Catalog is the static, read-only model table.
type Catalog struct {
	currency string
	models   map[string]ModelDescriptor
	order    []string
	avgIn    float64
	avgOut   float64
}

// DefaultCatalog returns the embedded model table.
func DefaultCatalog() *Catalog {
	catalog, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded model catalog: %v", err))
	}
	return catalog
}

// LoadCatalog reads a model table from path. An empty path yields the
// embedded default.
func LoadCatalog(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultCatalog(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price table: %w", err)
	}

	catalog, err := ParseCatalog(content)
	if err != nil {
		return nil, fmt.Errorf("parse price table %s: %w", path, err)
	}
	return catalog, nil
}

// ParseCatalog decodes a YAML model table.
func ParseCatalog(content []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, err
	}
	if len(file.Models) == 0 {
		return nil, errors.New("no models defined")
	}

	c := &Catalog{
		currency: strings.TrimSpace(file.Currency),
		models:   make(map[string]ModelDescriptor, len(file.Models)),
	}

	var sumIn, sumOut float64
	for i, model := range file.Models {
		model.ID = strings.TrimSpace(model.ID)
		if model.ID == "" {
			return nil, fmt.Errorf("model %d: id is required", i)
		}
		if _, dup := c.models[model.ID]; dup {
			return nil, fmt.Errorf("model %q: duplicate id", model.ID)
		}
		if model.PricePerKInput < 0 || model.PricePerKOutput < 0 {
			return nil, fmt.Errorf("model %q: negative price", model.ID)
		}
		model.Provider = strings.ToLower(strings.TrimSpace(model.Provider))

		c.models[model.ID] = model
		c.order = append(c.order, model.ID)
		sumIn += model.PricePerKInput
		sumOut += model.PricePerKOutput
	}

	c.avgIn = sumIn / float64(len(c.order))
	c.avgOut = sumOut / float64(len(c.order))
	slices.Sort(c.order)

	return c, nil
}

// Currency returns the catalog price currency.
func (c *Catalog) Currency() string {
	return c.currency
}

// SetCurrency overrides the currency label used in estimates.
func (c *Catalog) SetCurrency(currency string) {
	if currency = strings.TrimSpace(currency); currency != "" {
		c.currency = currency
	}
}

// Lookup returns the descriptor for id.
func (c *Catalog) Lookup(id string) (ModelDescriptor, bool) {
	model, ok := c.models[strings.TrimSpace(id)]
	return model, ok
}

// All returns every model sorted by id.
func (c *Catalog) All() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.models[id])
	}
	return out
}

// Active returns the active models sorted by id.
func (c *Catalog) Active() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(c.order))
	for _, id := range c.order {
		if model := c.models[id]; model.IsActive {
			out = append(out, model)
		}
	}
	return out
}

// ByProvider returns the models of one provider sorted by id.
func (c *Catalog) ByProvider(provider string) []ModelDescriptor {
	provider = strings.ToLower(strings.TrimSpace(provider))
	var out []ModelDescriptor
	for _, id := range c.order {
		if model := c.models[id]; model.Provider == provider {
			out = append(out, model)
		}
	}
	return out
}

// Estimate prices a call: tokens / 1000 * price per 1K. Unknown models are
// priced at the catalog average and logged.
func (c *Catalog) Estimate(modelID string, promptTokens, completionTokens int64) Cost {
	priceIn, priceOut := c.avgIn, c.avgOut
	approximate := true
	if model, ok := c.Lookup(modelID); ok {
		priceIn, priceOut = model.PricePerKInput, model.PricePerKOutput
		approximate = false
	} else {
		slog.Default().With("component", "generation.catalog").Warn("Model not in price table, using average price", "model", modelID)
	}

	cost := Cost{
		Input:       float64(max(promptTokens, 0)) / 1000 * priceIn,
		Output:      float64(max(completionTokens, 0)) / 1000 * priceOut,
		Currency:    c.currency,
		Approximate: approximate,
	}
	cost.Total = cost.Input + cost.Output
	return cost
}
