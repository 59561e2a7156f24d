package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/grilobridge/grilobridge/pkg/errors"
	"github.com/grilobridge/grilobridge/pkg/media"
)

// Catalog is a static tree of records served by a Provider.
type Catalog struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Resolve bool   `yaml:"resolve"`
	Items   []Item `yaml:"items"`
}

// Item is one catalog entry. Items with children are boxes.
type Item struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type,omitempty"`
	Title    string `yaml:"title,omitempty"`
	URL      string `yaml:"url,omitempty"`
	Artist   string `yaml:"artist,omitempty"`
	Album    string `yaml:"album,omitempty"`
	Genre    string `yaml:"genre,omitempty"`
	Mime     string `yaml:"mime,omitempty"`
	Duration int    `yaml:"duration,omitempty"`
	Children []Item `yaml:"children,omitempty"`
}

// TypeName returns the record kind of the item.
func (it *Item) TypeName() string {
	switch {
	case it.Type != "":
		return it.Type
	case len(it.Children) > 0:
		return media.TypeBox
	default:
		return media.TypeAudio
	}
}

// LoadCatalog reads a catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from configuration
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to read catalog", err).
			WithComponent("memory").
			WithDetail("path", path)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog and validates it.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to parse catalog", err).
			WithComponent("memory")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that the catalog has an id and that item ids are unique
// and non-empty.
func (c *Catalog) Validate() error {
	if c.ID == "" {
		return invalidCatalog("catalog id cannot be empty")
	}
	kinds := media.Builtin()
	seen := make(map[string]bool)
	var walk func(items []Item) error
	walk = func(items []Item) error {
		for i := range items {
			it := &items[i]
			if it.ID == "" {
				return invalidCatalog("item id cannot be empty")
			}
			if seen[it.ID] {
				return invalidCatalog(fmt.Sprintf("duplicate item id %q", it.ID))
			}
			seen[it.ID] = true
			if _, ok := kinds.New(it.TypeName()); !ok {
				return invalidCatalog(fmt.Sprintf("item %q has unknown type %q", it.ID, it.TypeName()))
			}
			if len(it.Children) > 0 && it.TypeName() != media.TypeBox {
				return invalidCatalog(fmt.Sprintf("item %q has children but type %s", it.ID, it.TypeName()))
			}
			if err := walk(it.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(c.Items)
}

func invalidCatalog(msg string) error {
	return errors.NewError(errors.ErrCodeInvalidConfig, msg).
		WithComponent("memory").
		WithOperation("validate")
}
