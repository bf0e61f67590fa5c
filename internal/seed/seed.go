// Package seed bootstraps a demo building for local development.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
)

const (
	demoBuildingName = "Demo Building"
	demoAdminEmail   = "admin@vhod.local"
	demoAdminName    = "Vhod Admin"
)

// EnsureDemoBuilding seeds one building with a few units, expense
// categories, a superadmin account and a water meter. Idempotent:
// every row is looked up before it is created.
func EnsureDemoBuilding(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		building, err := ensureBuildingTx(ctx, tx, node)
		if err != nil {
			return err
		}
		units, err := ensureUnitsTx(ctx, tx, node, building.ID)
		if err != nil {
			return err
		}
		if err := ensureAdminTx(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureCategoriesTx(ctx, tx, node, building.ID); err != nil {
			return err
		}
		return ensureWaterMetersTx(ctx, tx, node, building.ID, units)
	})
}

func ensureBuildingTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*buildingdomain.Building, error) {
	var building buildingdomain.Building
	err := tx.WithContext(ctx).
		Where("slug = ?", slug.Make(demoBuildingName)).
		First(&building).Error
	if err == nil {
		return &building, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	building = buildingdomain.Building{
		ID:        node.Generate(),
		Name:      demoBuildingName,
		Slug:      slug.Make(demoBuildingName),
		Address:   "1 Example St",
		City:      "Sofia",
		Entrances: datatypes.NewJSONType([]string{"A", "B"}),
		Settings: datatypes.NewJSONType(buildingdomain.Settings{
			DueDay:     15,
			GraceDays:  5,
			LateFeeBps: 100,
			QuietHours: &buildingdomain.QuietHours{Start: "22:00", End: "07:00"},
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&building).Error; err != nil {
		return nil, err
	}
	return &building, nil
}

func ensureUnitsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, buildingID snowflake.ID) ([]buildingdomain.Unit, error) {
	specs := []buildingdomain.Unit{
		{Label: "A1", Entrance: "A", Floor: 1, AreaDm2: 6_500, SharesMilli: 250_000, Occupants: 2, IntercomExt: "101", Active: true},
		{Label: "A2", Entrance: "A", Floor: 1, AreaDm2: 7_800, SharesMilli: 300_000, Occupants: 3, IntercomExt: "102", Active: true},
		{Label: "B1", Entrance: "B", Floor: 2, AreaDm2: 6_500, SharesMilli: 250_000, Occupants: 1, IntercomExt: "201", Active: true},
		{Label: "B2", Entrance: "B", Floor: 2, AreaDm2: 5_200, SharesMilli: 200_000, Occupants: 2, IntercomExt: "202", Active: true},
	}

	out := make([]buildingdomain.Unit, 0, len(specs))
	now := time.Now().UTC()
	for _, spec := range specs {
		var unit buildingdomain.Unit
		err := tx.WithContext(ctx).
			Where("building_id = ? AND label = ?", buildingID, spec.Label).
			First(&unit).Error
		if err == nil {
			out = append(out, unit)
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		unit = spec
		unit.ID = node.Generate()
		unit.BuildingID = buildingID
		unit.CreatedAt = now
		unit.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&unit).Error; err != nil {
			return nil, err
		}
		out = append(out, unit)
	}
	return out, nil
}

func ensureAdminTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var user directorydomain.User
	err := tx.WithContext(ctx).
		Where("email = ?", strings.ToLower(demoAdminEmail)).
		First(&user).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now().UTC()
	user = directorydomain.User{
		ID:          node.Generate(),
		Email:       strings.ToLower(demoAdminEmail),
		FullName:    demoAdminName,
		SiteRoles:   datatypes.NewJSONType([]string{"superadmin"}),
		IsSuperuser: true,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.WithContext(ctx).Create(&user).Error
}

func ensureCategoriesTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, buildingID snowflake.ID) error {
	specs := []expensedomain.ExpenseCategory{
		{
			Name:   "Cleaning",
			Method: expensedomain.MethodPerUnit,
		},
		{
			Name:     "Elevator",
			Method:   expensedomain.MethodPerPerson,
			Settings: datatypes.NewJSONType(expensedomain.CategorySettings{ExcludeVacantUnits: true}),
		},
		{
			Name:     "Repairs",
			Method:   expensedomain.MethodShares,
			Settings: datatypes.NewJSONType(expensedomain.CategorySettings{WeightBasis: expensedomain.BasisShares}),
		},
		{
			Name:   "Water",
			Method: expensedomain.MethodMetered,
			Settings: datatypes.NewJSONType(expensedomain.CategorySettings{
				MeterKind:          "water",
				TariffCentsPerUnit: 350,
				MeteredRemainder:   expensedomain.RemainderRedistribute,
			}),
		},
	}

	now := time.Now().UTC()
	for _, spec := range specs {
		var category expensedomain.ExpenseCategory
		err := tx.WithContext(ctx).
			Where("building_id = ? AND name = ?", buildingID, spec.Name).
			First(&category).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		category = spec
		category.ID = node.Generate()
		category.BuildingID = buildingID
		category.Code = slug.Make(category.Name)
		category.Active = true
		category.CreatedAt = now
		category.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&category).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureWaterMetersTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, buildingID snowflake.ID, units []buildingdomain.Unit) error {
	now := time.Now().UTC()
	for _, unit := range units {
		var meter meteringdomain.Meter
		err := tx.WithContext(ctx).
			Where("unit_id = ? AND kind = ?", unit.ID, "water").
			First(&meter).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		meter = meteringdomain.Meter{
			ID:         node.Generate(),
			BuildingID: buildingID,
			UnitID:     unit.ID,
			Kind:       "water",
			CreatedAt:  now,
		}
		if err := tx.WithContext(ctx).Create(&meter).Error; err != nil {
			return err
		}
	}
	return nil
}
