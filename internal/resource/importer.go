package resource

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tealeg/xlsx/v3"
	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/config"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/model"
)

// Import outcomes recorded in metrics.
const (
	ImportSucceeded = "success"
	ImportPartial   = "partial"
	ImportRejected  = "rejected"
	ImportInvalid   = "invalid"
	ImportFailed    = "transport"
)

// FileField is the field name the spreadsheet is uploaded under; it is also
// the key of preflight field errors.
const FileField = "file"

var errNoDataRows = errors.New("the file has a header row but no data rows")

// Importer uploads user spreadsheets to the marketplace bulk import
// endpoint. Files are checked locally before upload so obviously broken
// files never reach the server.
type Importer struct {
	exec     *Executor
	path     string
	tokens   TokenSource
	required []string
	maxBytes int64
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewImporter creates an Importer. metrics may be nil.
func NewImporter(exec *Executor, cfg config.ImportConfig, tokens TokenSource, metrics *observability.Metrics) *Importer {
	path := cfg.Path
	if path == "" {
		path = "/importuser/import"
	}
	if tokens == nil {
		tokens = StaticToken("")
	}
	required := make([]string, 0, len(cfg.RequiredColumns))
	for _, c := range cfg.RequiredColumns {
		if c = normalizeColumn(c); c != "" {
			required = append(required, c)
		}
	}
	return &Importer{
		exec:     exec,
		path:     path,
		tokens:   tokens,
		required: required,
		maxBytes: cfg.MaxFileBytes,
		logger:   exec.logger,
		metrics:  metrics,
	}
}

// Import checks the file, uploads it and returns the server's report. The
// report is returned in full even when some rows were skipped or failed.
func (im *Importer) Import(ctx context.Context, filename string, data []byte) model.Result[model.ImportReport] {
	token := strings.TrimSpace(im.tokens.Token(ctx))
	if token == "" {
		return model.Fail[model.ImportReport](model.NewPreconditionFailure(model.MessageMissingToken))
	}
	if f := im.Preflight(filename, data); f != nil {
		im.metrics.RecordImport(ImportInvalid, 0, 0)
		return model.Fail[model.ImportReport](f)
	}

	body, contentType, err := multipartBody(filename, data)
	if err != nil {
		im.metrics.RecordImport(ImportInvalid, 0, 0)
		return model.Fail[model.ImportReport](invalidFile(err.Error()))
	}

	resp, err := im.exec.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        im.path,
		Token:       token,
		Body:        body,
		ContentType: contentType,
	})
	if err != nil {
		im.logger.Warn("user import upload failed", zap.String("file", filename), zap.Error(err))
		im.metrics.RecordImport(ImportFailed, 0, 0)
		return model.Fail[model.ImportReport](model.NewTransportFailure())
	}

	env, isEnvelope := parseEnvelope(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || (isEnvelope && env.Success != nil && !*env.Success) {
		im.metrics.RecordImport(ImportRejected, 0, 0)
		return model.Fail[model.ImportReport](rejectionFrom(resp))
	}

	report, err := decodeImportReport(resp.Body)
	if err != nil {
		im.logger.Warn("user import returned an unreadable report", zap.Error(err))
		im.metrics.RecordImport(ImportRejected, 0, 0)
		return model.Fail[model.ImportReport](&model.Failure{
			Kind:    model.FailureServerRejection,
			Message: model.MessageServerFailure,
		})
	}

	report.ID = uuid.NewString()
	report.FileName = filename
	report.CreatedAt = time.Now().UTC()
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		report.SubjectID = rctx.SubjectID
	}

	outcome := ImportSucceeded
	if report.Partial() {
		outcome = ImportPartial
	}
	im.metrics.RecordImport(outcome, report.Inserted, report.Skipped)
	im.logger.Info("user import completed",
		zap.String("file", filename),
		zap.Int("inserted", report.Inserted),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", len(report.Errors)),
	)
	return model.Succeed(report)
}

// Preflight validates the file without contacting the server. It returns a
// validation failure keyed by FileField, or nil.
func (im *Importer) Preflight(filename string, data []byte) *model.Failure {
	if len(data) == 0 {
		return invalidFile("the file is empty")
	}
	if im.maxBytes > 0 && int64(len(data)) > im.maxBytes {
		return invalidFile(fmt.Sprintf("the file exceeds the %d byte limit", im.maxBytes))
	}

	var (
		header []string
		err    error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		header, err = csvHeader(data)
	case ".xlsx":
		header, err = xlsxHeader(data)
	default:
		return invalidFile("only .csv and .xlsx files can be imported")
	}
	if err != nil {
		return invalidFile(err.Error())
	}

	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[normalizeColumn(h)] = true
	}
	var missing []string
	for _, col := range im.required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return invalidFile("missing required columns: " + strings.Join(missing, ", "))
	}
	return nil
}

func invalidFile(msg string) *model.Failure {
	return &model.Failure{
		Kind:        model.FailureValidation,
		Message:     "The selected file cannot be imported.",
		FieldErrors: map[string][]string{FileField: {msg}},
	}
}

func normalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}

// csvHeader returns the header row and requires at least one non-blank
// data row after it.
func csvHeader(data []byte) ([]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("the file could not be read as CSV: %w", err)
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil, errNoDataRows
		}
		if err != nil {
			return nil, fmt.Errorf("the file could not be read as CSV: %w", err)
		}
		if !blank(rec) {
			return header, nil
		}
	}
}

// xlsxHeader reads the first sheet's header row and requires at least one
// non-blank data row.
func xlsxHeader(data []byte) ([]string, error) {
	file, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, fmt.Errorf("the file could not be read as a spreadsheet: %w", err)
	}
	if len(file.Sheets) == 0 {
		return nil, errors.New("the spreadsheet has no sheets")
	}
	sheet := file.Sheets[0]

	var (
		header  []string
		hasData bool
		rowIdx  int
	)
	err = sheet.ForEachRow(func(r *xlsx.Row) error {
		var values []string
		if err := r.ForEachCell(func(c *xlsx.Cell) error {
			values = append(values, strings.TrimSpace(c.String()))
			return nil
		}); err != nil {
			return err
		}
		if rowIdx == 0 {
			header = values
		} else if !blank(values) {
			hasData = true
		}
		rowIdx++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("the spreadsheet rows could not be read: %w", err)
	}
	if rowIdx == 0 {
		return nil, errors.New("the spreadsheet is empty")
	}
	if !hasData {
		return nil, errNoDataRows
	}
	return header, nil
}

func blank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func multipartBody(filename string, data []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(FileField, filepath.Base(filename))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// decodeImportReport reads {message, inserted, skipped, errors}, optionally
// wrapped in the data member of the envelope.
func decodeImportReport(body []byte) (model.ImportReport, error) {
	var raw struct {
		Message  string          `json:"message"`
		Inserted int             `json:"inserted"`
		Skipped  int             `json:"skipped"`
		Errors   json.RawMessage `json:"errors"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.ImportReport{}, fmt.Errorf("resource: decode import report: %w", err)
	}

	message := raw.Message
	if d := bytes.TrimSpace(raw.Data); len(d) > 0 && d[0] == '{' {
		if err := json.Unmarshal(d, &raw); err != nil {
			return model.ImportReport{}, fmt.Errorf("resource: decode import report: %w", err)
		}
		if raw.Message == "" {
			raw.Message = message
		}
	}

	return model.ImportReport{
		Message:  raw.Message,
		Inserted: raw.Inserted,
		Skipped:  raw.Skipped,
		Errors:   flattenErrors(raw.Errors),
	}, nil
}

// flattenErrors turns the import errors member into display strings,
// keeping the server's order. Row errors given as objects are rendered as
// "field: message".
func flattenErrors(raw json.RawMessage) []string {
	out := []string{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return out
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if json.Unmarshal(raw, &items) != nil {
			return out
		}
		for _, item := range items {
			field, msg := fieldEntry(item)
			switch {
			case msg == "":
			case field == "":
				out = append(out, msg)
			default:
				out = append(out, field+": "+msg)
			}
		}
	case '{', '"':
		f := model.Failure{FieldErrors: parseFieldErrors(raw)}
		for _, field := range f.FieldNames() {
			for _, msg := range f.FieldErrors[field] {
				if field == "" {
					out = append(out, msg)
				} else {
					out = append(out, field+": "+msg)
				}
			}
		}
	}
	return out
}
