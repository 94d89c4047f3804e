package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/BartekS5/ticketflow/pkg/etlerr"
	"github.com/BartekS5/ticketflow/pkg/logger"
	"github.com/BartekS5/ticketflow/pkg/models"
)

// BigQuery loads staged files straight from Cloud Storage URIs and runs
// the merge as a query job.
type BigQuery struct {
	client  *bigquery.Client
	dataset string
}

func NewBigQuery(ctx context.Context, projectID, dataset string) (*BigQuery, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, etlerr.Wrap("create bigquery client", err)
	}
	return &BigQuery{client: client, dataset: dataset}, nil
}

func (b *BigQuery) Close() error {
	return b.client.Close()
}

func (b *BigQuery) table(name string) *bigquery.Table {
	return b.client.Dataset(b.dataset).Table(name)
}

// ref renders the backtick-quoted `project.dataset.table` reference.
func (b *BigQuery) ref(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", b.client.Project(), b.dataset, name)
}

func (b *BigQuery) LoadStage(ctx context.Context, sourceURI, table string, schema models.Schema, mode WriteMode) (int64, error) {
	op := "load " + sourceURI + " into " + table

	src := bigquery.NewGCSReference(sourceURI)
	src.SourceFormat = bigquery.CSV
	src.SkipLeadingRows = 1
	src.Schema = bqSchema(schema)

	loader := b.table(table).LoaderFrom(src)
	loader.CreateDisposition = bigquery.CreateIfNeeded
	switch mode {
	case WriteTruncate:
		loader.WriteDisposition = bigquery.WriteTruncate
	case WriteEmpty:
		loader.WriteDisposition = bigquery.WriteEmpty
	default:
		loader.WriteDisposition = bigquery.WriteAppend
	}

	job, err := loader.Run(ctx)
	if err != nil {
		return 0, etlerr.Wrap(op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return 0, etlerr.Wrap(op, err)
	}
	if err := status.Err(); err != nil {
		return 0, etlerr.New(jobErrorKind(err), op, err)
	}

	var rows int64
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
			rows = stats.OutputRows
		}
	}
	logger.L().Infow("Loaded staged file", "uri", sourceURI, "table", b.ref(table), "rows", rows, "job", job.ID())
	return rows, nil
}

func (b *BigQuery) EnsureHistoricalTable(ctx context.Context, table string, schema models.Schema) error {
	if err := b.ensureDataset(ctx); err != nil {
		return err
	}
	t := b.table(table)
	_, err := t.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return etlerr.Wrap("get table "+table, err)
	}

	err = t.Create(ctx, &bigquery.TableMetadata{Schema: bqSchema(schema.WithSCD2())})
	if err != nil && !isStatus(err, http.StatusConflict) {
		return etlerr.Wrap("create table "+table, err)
	}
	logger.Infof("Created historical table %s", b.ref(table))
	return nil
}

func (b *BigQuery) ensureDataset(ctx context.Context) error {
	ds := b.client.Dataset(b.dataset)
	_, err := ds.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusNotFound) {
		return etlerr.Wrap("get dataset "+b.dataset, err)
	}
	if err := ds.Create(ctx, nil); err != nil && !isStatus(err, http.StatusConflict) {
		return etlerr.Wrap("create dataset "+b.dataset, err)
	}
	logger.Infof("Created dataset %s", b.dataset)
	return nil
}

func (b *BigQuery) MergeSCD2(ctx context.Context, stage, historical string, schema models.Schema) (MergeResult, error) {
	op := "merge " + stage + " into " + historical
	q := b.client.Query(MergeStatement(BigQueryDialect, b.ref(stage), b.ref(historical), schema))

	job, err := q.Run(ctx)
	if err != nil {
		return MergeResult{}, etlerr.Wrap(op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return MergeResult{}, etlerr.Wrap(op, err)
	}
	if err := status.Err(); err != nil {
		return MergeResult{}, etlerr.New(jobErrorKind(err), op, err)
	}

	var res MergeResult
	if status.Statistics != nil {
		if stats, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			res.Affected = stats.NumDMLAffectedRows
			if dml := stats.DMLStats; dml != nil {
				res.Inserted = dml.InsertedRowCount
				res.Closed = dml.UpdatedRowCount
			}
		}
	}
	return res, nil
}

func (b *BigQuery) DropTable(ctx context.Context, table string) error {
	err := b.table(table).Delete(ctx)
	if err != nil && !isStatus(err, http.StatusNotFound) {
		return etlerr.Wrap("drop table "+table, err)
	}
	return nil
}

func bqSchema(schema models.Schema) bigquery.Schema {
	out := make(bigquery.Schema, len(schema))
	for i, c := range schema {
		out[i] = &bigquery.FieldSchema{Name: c.Name, Type: bigquery.FieldType(c.Type)}
	}
	return out
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// jobErrorKind maps the reason of a failed job onto a kind. Job errors are
// not googleapi errors, so Classify cannot see them.
func jobErrorKind(err error) etlerr.Kind {
	var jobErr *bigquery.Error
	if !errors.As(err, &jobErr) {
		return etlerr.Classify(err)
	}
	switch jobErr.Reason {
	case "invalid", "invalidQuery":
		return etlerr.KindMalformedRequest
	case "notFound":
		return etlerr.KindNotFound
	case "accessDenied":
		return etlerr.KindConfiguration
	case "timeout":
		return etlerr.KindTimeout
	default:
		return etlerr.KindService
	}
}
