package modules

import (
	"github.com/iota-uz/sheet-importer/pkg/application"
)

func Load(app application.Application, modules ...application.Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
