package transport

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/pitabwire/marketdesk/internal/importlog"
	"github.com/pitabwire/marketdesk/internal/observability"
	"github.com/pitabwire/marketdesk/internal/pagination"
	"github.com/pitabwire/marketdesk/internal/resource"
	"github.com/pitabwire/marketdesk/model"
)

// multipartOverhead is allowed on top of the file size for the multipart
// framing of an upload.
const multipartOverhead = 64 << 10

// UserImporter uploads a user spreadsheet. *resource.Importer implements
// it.
type UserImporter interface {
	Import(ctx context.Context, filename string, data []byte) model.Result[model.ImportReport]
}

// imports carries the dependencies of the import routes.
type imports struct {
	importer   UserImporter
	history    importlog.Store
	maxBytes   int64
	maxVisible int
	logger     *zap.Logger
}

// handleImportUsers accepts a multipart upload with the spreadsheet under
// the "file" field and answers with the import report.
func handleImportUsers(im imports) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has(model.CapabilityImportUsers) {
			WriteForbidden(w, r, "Not allowed to import users")
			return
		}

		limit := im.maxBytes
		if limit <= 0 {
			limit = 5 << 20
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		file, header, err := r.FormFile(resource.FileField)
		if err != nil {
			WriteError(w, r, &model.ErrorEnvelope{
				Code:    model.ErrImportInvalid,
				Message: "A spreadsheet must be uploaded in the file field",
				Details: []model.FieldError{{Field: resource.FileField, Code: "REQUIRED", Message: err.Error()}},
			})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			WriteError(w, r, model.NewBadRequestError("unreadable upload"))
			return
		}

		res := im.importer.Import(r.Context(), header.Filename, data)
		if !res.OK() {
			env := envelopeFor(res.Failure)
			if res.Failure.Kind == model.FailureValidation {
				env.Code = model.ErrImportInvalid
			}
			WriteError(w, r, env)
			return
		}

		if im.history != nil {
			if err := im.history.Append(r.Context(), res.Data); err != nil {
				observability.RequestLogger(r.Context(), im.logger).Warn("import report not recorded",
					zap.String("import_id", res.Data.ID),
					zap.Error(err),
				)
			}
		}
		WriteJSON(w, http.StatusCreated, res.Data)
	}
}

type importHistoryResponse struct {
	model.ListResult[model.ImportReport]
	Window []pagination.Indicator `json:"pagination"`
}

// handleListImports pages through the admin's own import history.
func handleListImports(im imports) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !CapabilitiesFrom(r.Context()).Has(model.CapabilityImportUsers) {
			WriteForbidden(w, r, "Not allowed to import users")
			return
		}
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		if im.history == nil {
			WriteNotFound(w, r, "import history is not kept")
			return
		}

		list, err := im.history.List(r.Context(), importlog.Query{
			SubjectID: rctx.SubjectID,
			Page:      queryInt(r, "page", 1),
			PageSize:  queryInt(r, "page_size", 20),
		})
		if err != nil {
			observability.RequestLogger(r.Context(), im.logger).Error("import history query failed", zap.Error(err))
			WriteError(w, r, model.NewInternalError())
			return
		}
		WriteJSON(w, http.StatusOK, importHistoryResponse{
			ListResult: list,
			Window:     pagination.Window(list.Page, list.TotalPages, im.maxVisible),
		})
	}
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
