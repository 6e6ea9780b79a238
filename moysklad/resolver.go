package moysklad

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"bitbucket.org/almasoft/crm_backend/config"
	"bitbucket.org/almasoft/crm_backend/models"
)

// ErrUnresolvedReference is returned when a record points at an entity
// that has not been synced and placeholder creation is disabled.
var ErrUnresolvedReference = errors.New("referenced entity not found")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// resolver translates external ids into local row ids, creating
// placeholder rows for not-yet-synced entities so foreign keys can be
// written in any sync order. Lookups are memoized for the run.
type resolver struct {
	db    *gorm.DB
	cache map[string]int
}

func newResolver(db *gorm.DB) *resolver {
	return &resolver{db: db, cache: map[string]int{}}
}

// resolve finds the local id for (entityType, externalId). A missing
// row becomes a placeholder via makePlaceholder when allowed; the
// placeholder stays sync_status=pending until its own record arrives.
func (r *resolver) resolve(entityType, externalId string, lookup func(string) (int, error), makePlaceholder func(string) (int, error)) (*int, error) {
	if externalId == "" {
		return nil, nil
	}
	cacheKey := entityType + ":" + externalId
	if id, ok := r.cache[cacheKey]; ok {
		return &id, nil
	}

	id, err := lookup(externalId)
	if err == nil {
		r.cache[cacheKey] = id
		return &id, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if !config.SyncCreatePlaceholders() {
		return nil, fmt.Errorf("%w: %s %s", ErrUnresolvedReference, entityType, externalId)
	}

	id, err = makePlaceholder(externalId)
	if err != nil {
		// Concurrent insert of the same external id loses the race on
		// the unique index; the winner's row is the answer.
		if isDuplicateKeyErr(err) {
			id, err = lookup(externalId)
			if err != nil {
				return nil, err
			}
			r.cache[cacheKey] = id
			return &id, nil
		}
		return nil, err
	}
	r.cache[cacheKey] = id
	return &id, nil
}

func (r *resolver) lookupId(model interface{}, externalId string) (int, error) {
	var row struct{ ID int }
	err := r.db.Model(model).Select("id").
		Where("external_id = ?", externalId).Take(&row).Error
	if err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (r *resolver) productFolderId(externalId string) (*int, error) {
	return r.resolve("product_folder", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.ProductFolder{}, extID)
		},
		func(extID string) (int, error) {
			f := &models.ProductFolder{Name: "MoySklad Folder " + extID}
			f.ExternalId = &extID
			if err := r.db.Create(f).Error; err != nil {
				return 0, err
			}
			return f.ID, nil
		})
}

func (r *resolver) uomId(externalId string) (*int, error) {
	return r.resolve("uom", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.UnitOfMeasure{}, extID)
		},
		func(extID string) (int, error) {
			u := &models.UnitOfMeasure{Name: "MoySklad Unit " + extID}
			u.ExternalId = &extID
			if err := r.db.Create(u).Error; err != nil {
				return 0, err
			}
			return u.ID, nil
		})
}

func (r *resolver) productId(externalId string) (*int, error) {
	return r.resolve("product", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.Product{}, extID)
		},
		func(extID string) (int, error) {
			p := &models.Product{Name: "MoySklad Product " + extID}
			p.ExternalId = &extID
			if err := r.db.Create(p).Error; err != nil {
				return 0, err
			}
			return p.ID, nil
		})
}

func (r *resolver) counterpartyId(externalId string) (*int, error) {
	return r.resolve("counterparty", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.Counterparty{}, extID)
		},
		func(extID string) (int, error) {
			c := &models.Counterparty{Name: "MoySklad Counterparty " + extID}
			c.ExternalId = &extID
			if err := r.db.Create(c).Error; err != nil {
				return 0, err
			}
			return c.ID, nil
		})
}

func (r *resolver) organizationId(externalId string) (*int, error) {
	return r.resolve("organization", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.Organization{}, extID)
		},
		func(extID string) (int, error) {
			o := &models.Organization{Name: "MoySklad Organization " + extID}
			o.ExternalId = &extID
			if err := r.db.Create(o).Error; err != nil {
				return 0, err
			}
			return o.ID, nil
		})
}

func (r *resolver) projectId(externalId string) (*int, error) {
	return r.resolve("project", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.Project{}, extID)
		},
		func(extID string) (int, error) {
			p := &models.Project{Name: "MoySklad Project " + extID}
			p.ExternalId = &extID
			if err := r.db.Create(p).Error; err != nil {
				return 0, err
			}
			return p.ID, nil
		})
}

func (r *resolver) storeId(externalId string) (*int, error) {
	return r.resolve("store", externalId,
		func(extID string) (int, error) {
			return r.lookupId(&models.Store{}, extID)
		},
		func(extID string) (int, error) {
			s := &models.Store{Name: "MoySklad Store " + extID}
			s.ExternalId = &extID
			if err := r.db.Create(s).Error; err != nil {
				return 0, err
			}
			return s.ID, nil
		})
}
