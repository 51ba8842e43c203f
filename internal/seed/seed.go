package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/harborlabs/cruisesync/internal/catalog/domain"
	"gorm.io/gorm"
)

// EnsureCruiseLines upserts the lines named in spec, a semicolon separated
// list of code=name pairs, e.g. "7=Royal Caribbean;16=Cunard". Lines are
// only ever created, never renamed, so operator edits in the database win.
func EnsureCruiseLines(db *gorm.DB, node *snowflake.Node, spec string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, pair := range strings.Split(spec, ";") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			code, name, found := strings.Cut(pair, "=")
			code = strings.TrimSpace(code)
			name = strings.TrimSpace(name)
			if !found || code == "" {
				continue
			}
			if name == "" {
				name = code
			}

			var existing catalogdomain.CruiseLine
			err := tx.Where("code = ?", code).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			line := catalogdomain.CruiseLine{
				ID:     node.Generate(),
				Code:   code,
				Name:   name,
				Active: true,
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
