package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	mssql "github.com/microsoft/go-mssqldb"

	"github.com/BartekS5/ticketflow/pkg/blobstore"
	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/models"
)

// SQLServer keeps stage and historical tables in one SQL Server schema.
// The engine cannot read object-store URIs, so staged files are streamed
// from the blob store and bulk-copied in.
type SQLServer struct {
	db     *sqlx.DB
	blobs  blobstore.Store
	schema string
}

func NewSQLServer(db *sqlx.DB, blobs blobstore.Store, schema string) *SQLServer {
	if schema == "" {
		schema = "dbo"
	}
	return &SQLServer{db: db, blobs: blobs, schema: schema}
}

func (s *SQLServer) ref(table string) string {
	return "[" + s.schema + "].[" + table + "]"
}

func (s *SQLServer) LoadStage(ctx context.Context, sourceURI, table string, schema models.Schema, mode WriteMode) (int64, error) {
	op := "load " + sourceURI + " into " + table
	bucket, key, err := blobstore.ParseURI(sourceURI)
	if err != nil {
		return 0, err
	}
	r, err := s.blobs.Open(ctx, bucket, key)
	if err != nil {
		return 0, etlerr.Wrap(op, err)
	}
	defer r.Close()

	rows, err := readStagedRows(r, schema)
	if err != nil {
		return 0, etlerr.New(etlerr.KindMalformedRequest, op, err)
	}

	if err := s.createTable(ctx, table, schema); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, sqlError(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	switch mode {
	case WriteTruncate:
		if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+s.ref(table)); err != nil {
			return 0, sqlError(op, err)
		}
	case WriteEmpty:
		sb := sqlbuilder.SQLServer.NewSelectBuilder()
		sb.Select("COUNT(1)").From(s.ref(table))
		query, args := sb.Build()
		var n int64
		if err := tx.GetContext(ctx, &n, query, args...); err != nil {
			return 0, sqlError(op, err)
		}
		if n > 0 {
			return 0, etlerr.Errorf(etlerr.KindMalformedRequest, op, "table %s already contains data", table)
		}
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(s.ref(table), mssql.BulkOptions{Tablock: true}, schema.Names()...))
	if err != nil {
		return 0, sqlError(op, err)
	}
	for _, row := range rows {
		values := make([]any, len(schema))
		for i, c := range schema {
			values[i] = row[c.Name]
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			_ = stmt.Close()
			return 0, sqlError(op, err)
		}
	}
	// The final argument-less Exec flushes the bulk copy.
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return 0, sqlError(op, err)
	}
	if err := stmt.Close(); err != nil {
		return 0, sqlError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, sqlError(op, err)
	}

	logger.L().Infow("Loaded staged file", "uri", sourceURI, "table", s.ref(table), "rows", len(rows))
	return int64(len(rows)), nil
}

func (s *SQLServer) EnsureHistoricalTable(ctx context.Context, table string, schema models.Schema) error {
	return s.createTable(ctx, table, schema.WithSCD2())
}

func (s *SQLServer) createTable(ctx context.Context, table string, schema models.Schema) error {
	ctb := sqlbuilder.SQLServer.NewCreateTableBuilder()
	ctb.CreateTable(s.ref(table))
	for i, c := range schema {
		def := []string{"[" + c.Name + "]", sqlServerType(c.Type, i == 0)}
		if c.Name == models.ColIsCurrent {
			def = append(def, "NOT NULL")
		}
		ctb.Define(def...)
	}
	create, _ := ctb.Build()

	query := fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", s.schema+"."+table, create)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return sqlError("create table "+table, err)
	}
	return nil
}

func (s *SQLServer) MergeSCD2(ctx context.Context, stage, historical string, schema models.Schema) (MergeResult, error) {
	op := "merge " + stage + " into " + historical
	res, err := s.db.ExecContext(ctx, MergeStatement(SQLServerDialect, s.ref(stage), s.ref(historical), schema))
	if err != nil {
		return MergeResult{}, sqlError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return MergeResult{}, sqlError(op, err)
	}
	return MergeResult{Affected: n}, nil
}

func (s *SQLServer) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.ref(table)); err != nil {
		return sqlError("drop table "+table, err)
	}
	return nil
}

func sqlServerType(t models.ColumnType, key bool) string {
	switch t {
	case models.TypeDate:
		return "DATE"
	case models.TypeTime:
		return "TIME(0)"
	case models.TypeTimestamp:
		return "DATETIME2"
	case models.TypeFloat:
		return "FLOAT"
	case models.TypeBoolean:
		return "BIT"
	default:
		if key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// sqlError classifies driver errors by SQL Server error number.
func sqlError(op string, err error) error {
	var msErr mssql.Error
	if !errors.As(err, &msErr) {
		return etlerr.Wrap(op, err)
	}
	var kind etlerr.Kind
	switch msErr.Number {
	case 208, 3701:
		kind = etlerr.KindNotFound
	case 102, 156, 207, 245, 2601, 2627, 4815, 4816, 8152, 2628:
		kind = etlerr.KindMalformedRequest
	case 18456, 229, 262, 916:
		kind = etlerr.KindConfiguration
	case -2:
		kind = etlerr.KindTimeout
	default:
		kind = etlerr.KindService
	}
	return etlerr.New(kind, op, fmt.Errorf("mssql %d: %s", msErr.Number, strings.TrimSpace(msErr.Message)))
}
