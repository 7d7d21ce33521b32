package reportkind

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/schema"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

var ErrUnknownReportKind = serrors.NewError("UNKNOWN_REPORT_KIND", "unknown report kind", "Errors.UnknownReportKind")

// Kind binds a report kind name to its destination table.
type Kind struct {
	Name    string   `yaml:"name" toml:"name" json:"name"`
	Schema  string   `yaml:"schema" toml:"schema" json:"schema"`
	Table   string   `yaml:"table" toml:"table" json:"table"`
	Aliases []string `yaml:"aliases" toml:"aliases" json:"aliases,omitempty"`
}

func (k Kind) Ref() schema.TableRef {
	return schema.TableRef{Schema: k.Schema, Table: k.Table}
}

type file struct {
	Schema string `yaml:"schema" toml:"schema"`
	Kinds  []Kind `yaml:"kinds" toml:"kinds"`
}

type Registry struct {
	kinds   map[string]Kind
	aliases map[string]string
}

// Defaults returns the built-in report kinds living in defaultSchema.
func Defaults(defaultSchema string) *Registry {
	r := newRegistry()
	for _, k := range []Kind{
		{Name: "mercadopago", Table: "Informe Ventas MercadoPago"},
		{Name: "volumen", Table: "Informe Volumen Pago al Vendedor", Aliases: []string{"volumen-pago-vendedor"}},
		{Name: "jpv", Table: "JPV"},
		{Name: "serviclub", Table: "Reporte General Serviclub"},
		{Name: "crossselling", Table: "Ventas CrossSelling", Aliases: []string{"cross-selling"}},
		{Name: "ventas_extendidas", Table: "Ventas extendidas para Pago al Vendedor", Aliases: []string{"ventas-extendidas-pago-vendedor"}},
	} {
		k.Schema = defaultSchema
		r.put(k)
	}
	return r
}

// Load reads kinds from a .yaml/.yml/.toml file on top of the defaults.
// Entries with a known name replace the built-in mapping. An empty path
// returns the defaults.
func Load(path, defaultSchema string) (*Registry, error) {
	r := Defaults(defaultSchema)
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report kinds %s: %w", path, err)
	}

	var f file
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	default:
		return nil, fmt.Errorf("report kinds %s: unsupported extension %q", path, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse report kinds %s: %w", path, err)
	}

	fileSchema := f.Schema
	if fileSchema == "" {
		fileSchema = defaultSchema
	}
	for i, k := range f.Kinds {
		k.Name = normalize(k.Name)
		if k.Name == "" || strings.TrimSpace(k.Table) == "" {
			return nil, fmt.Errorf("report kinds %s: entry %d needs name and table", path, i)
		}
		if k.Schema == "" {
			k.Schema = fileSchema
		}
		r.put(k)
	}
	return r, nil
}

func newRegistry() *Registry {
	return &Registry{
		kinds:   make(map[string]Kind),
		aliases: make(map[string]string),
	}
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) put(k Kind) {
	if old, ok := r.kinds[k.Name]; ok {
		for _, a := range old.Aliases {
			delete(r.aliases, normalize(a))
		}
	}
	r.kinds[k.Name] = k
	for _, a := range k.Aliases {
		r.aliases[normalize(a)] = k.Name
	}
}

// Resolve looks a kind up by name or alias, case-insensitively.
func (r *Registry) Resolve(name string) (Kind, error) {
	n := normalize(name)
	if n == "" {
		return Kind{}, serrors.Validation("report kind is required")
	}
	if k, ok := r.kinds[n]; ok {
		return k, nil
	}
	if canonical, ok := r.aliases[n]; ok {
		return r.kinds[canonical], nil
	}
	return Kind{}, fmt.Errorf("%w: %w: %q", serrors.ErrValidation, ErrUnknownReportKind, name)
}

// All returns the kinds sorted by name.
func (r *Registry) All() []Kind {
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
