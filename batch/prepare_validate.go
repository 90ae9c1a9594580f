package batch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

// syntheticID spreads row i over the id space with gaps growing with i.
func syntheticID(i, rows, skew int64) int64 {
	return 1 + i + skew*(i*i/rows)
}

// PrepareSyntheticSource creates a synthetic source table for benchmark. If
// targetTable is not empty an empty table with the same schema is created
// for the copy.
func PrepareSyntheticSource(ctx context.Context, db *sql.DB, cfg PrepareConfig, targetTable string) error {
	cfg.withDefaults()
	table, err := quoteIdentifier(cfg.SourceTable)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE %s (
  id BIGINT NOT NULL,
  biz_key VARCHAR(64) NOT NULL,
  metric INT NOT NULL,
  note VARCHAR(64) NULL,
  PRIMARY KEY (id),
  KEY idx_biz_key (biz_key)
) ENGINE=InnoDB
`, table)); err != nil {
		return err
	}

	const batchSize int64 = 5000
	for start := int64(0); start < cfg.Rows; start += batchSize {
		end := start + batchSize
		if end > cfg.Rows {
			end = cfg.Rows
		}
		rowN := end - start

		placeholders := make([]string, 0, rowN)
		args := make([]interface{}, 0, rowN*4)
		for i := start; i < end; i++ {
			var note interface{}
			if i%7 != 0 {
				note = fmt.Sprintf("n%d", i%13)
			}
			placeholders = append(placeholders, "(?, ?, ?, ?)")
			args = append(args, syntheticID(i, cfg.Rows, cfg.Skew), fmt.Sprintf("key_%05d", i%cfg.KeyMod), 1+(i%5), note)
		}

		insertSQL := fmt.Sprintf(
			"INSERT INTO %s (id, biz_key, metric, note) VALUES %s",
			table,
			strings.Join(placeholders, ","),
		)
		if _, err := db.ExecContext(ctx, insertSQL, args...); err != nil {
			return err
		}
		log.WithFields(log.Fields{"table": cfg.SourceTable, "rows": end}).Trace("[Prepare] rows inserted")
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf(`ANALYZE TABLE %s`, table)); err != nil {
		return err
	}
	log.WithFields(log.Fields{"table": cfg.SourceTable, "rows": cfg.Rows, "skew": cfg.Skew}).Info("[Prepare] source table ready")

	if targetTable == "" {
		return nil
	}
	target, err := quoteIdentifier(targetTable)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, target)); err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s LIKE %s`, target, table))
	return err
}

// TableStats are the figures compared by ValidateCopy.
type TableStats struct {
	Rows int64
	Sum  int64
}

func validateSQL(table, sumColumn, where string) (string, error) {
	t, err := quoteIdentifier(table)
	if err != nil {
		return "", err
	}
	sum := "0"
	if sumColumn != "" {
		c, err := quoteIdentifier(sumColumn)
		if err != nil {
			return "", err
		}
		sum = fmt.Sprintf("COALESCE(SUM(%s), 0)", c)
	}
	return fmt.Sprintf("SELECT COUNT(*), %s FROM %s WHERE %s", sum, t, where), nil
}

// ValidateCopy checks that the target table holds as many rows as the
// filtered source, and the same sum of cfg.SumColumn.
func ValidateCopy(ctx context.Context, sourceDB, targetDB *sql.DB, cfg ValidateConfig) (src, dst TableStats, err error) {
	cfg.withDefaults()
	if cfg.SourceTable == "" || cfg.TargetTable == "" {
		return src, dst, fmt.Errorf("source table and target table are required")
	}
	srcSQL, err := validateSQL(cfg.SourceTable, cfg.SumColumn, cfg.Where)
	if err != nil {
		return src, dst, err
	}
	dstSQL, err := validateSQL(cfg.TargetTable, cfg.SumColumn, "1=1")
	if err != nil {
		return src, dst, err
	}
	if err := sourceDB.QueryRowContext(ctx, srcSQL).Scan(&src.Rows, &src.Sum); err != nil {
		return src, dst, fmt.Errorf("read source stats: %w", err)
	}
	if err := targetDB.QueryRowContext(ctx, dstSQL).Scan(&dst.Rows, &dst.Sum); err != nil {
		return src, dst, fmt.Errorf("read target stats: %w", err)
	}
	log.WithFields(log.Fields{
		"source_rows": src.Rows,
		"target_rows": dst.Rows,
		"source_sum":  src.Sum,
		"target_sum":  dst.Sum,
	}).Info("[Validate] table stats")
	if src.Rows != dst.Rows {
		return src, dst, fmt.Errorf("row count mismatch: source %d, target %d", src.Rows, dst.Rows)
	}
	if src.Sum != dst.Sum {
		return src, dst, fmt.Errorf("sum of %s mismatch: source %d, target %d", cfg.SumColumn, src.Sum, dst.Sum)
	}
	return src, dst, nil
}
