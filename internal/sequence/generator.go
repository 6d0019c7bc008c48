package sequence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	txTimeout     = 5 * time.Second
	maxProbeSteps = 100
)

type controlRow struct {
	ID         int       `gorm:"column:id;primaryKey"`
	LastNumber int64     `gorm:"column:last_number"`
	UpdatedAt  time.Time `gorm:"column:updated_at"`
}

func (controlRow) TableName() string {
	return "batch_request_control"
}

// Generator hands out batch request numbers for new submissions. The bank
// requires every requisition number to be unique per contract, so the last
// issued number is read, probed against existing batches for collisions and
// written back inside one bounded transaction.
type Generator struct {
	db *gorm.DB
}

func NewGenerator(db *gorm.DB) *Generator {
	return &Generator{db: db}
}

// Next returns the next unused batch request number.
func (g *Generator) Next(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	var issued int64
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var control controlRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", 1).
			First(&control).Error; err != nil {
			return fmt.Errorf("failed to read request number control: %w", err)
		}

		candidate := control.LastNumber + 1
		for steps := 0; ; steps++ {
			if steps >= maxProbeSteps {
				return fmt.Errorf("no free batch request number near %d", control.LastNumber)
			}
			var count int64
			if err := tx.Table("payment_batch").
				Where("batch_request_number = ?", strconv.FormatInt(candidate, 10)).
				Count(&count).Error; err != nil {
				return fmt.Errorf("failed to probe request number %d: %w", candidate, err)
			}
			if count == 0 {
				break
			}
			candidate++
		}

		if err := tx.Model(&controlRow{}).
			Where("id = ?", 1).
			Updates(map[string]interface{}{
				"last_number": candidate,
				"updated_at":  time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("failed to store request number %d: %w", candidate, err)
		}

		issued = candidate
		return nil
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(issued, 10), nil
}
