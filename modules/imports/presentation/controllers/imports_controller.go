package controllers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iota-uz/sheet-importer/modules/imports/domain/entities/importrun"
	"github.com/iota-uz/sheet-importer/modules/imports/presentation/controllers/dtos"
	"github.com/iota-uz/sheet-importer/modules/imports/services"
	"github.com/iota-uz/sheet-importer/pkg/application"
	"github.com/iota-uz/sheet-importer/pkg/composables"
	"github.com/iota-uz/sheet-importer/pkg/constants"
	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

type ImportsController struct {
	imports  *services.ImportService
	runs     *services.RunsService
	uploads  UploadOptions
	basePath string
}

func NewImportsController(app application.Application, uploads UploadOptions) application.Controller {
	return &ImportsController{
		imports:  app.Service(services.ImportService{}).(*services.ImportService),
		runs:     app.Service(services.RunsService{}).(*services.RunsService),
		uploads:  uploads,
		basePath: "/api/imports",
	}
}

func (c *ImportsController) Key() string {
	return c.basePath
}

func (c *ImportsController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/runs", c.ListRuns).Methods(http.MethodGet)
	router.HandleFunc("/kinds", c.ListKinds).Methods(http.MethodGet)
	router.HandleFunc("/{kind}", c.Import).Methods(http.MethodPost)
}

// Import runs the pipeline synchronously for the kind in the path.
func (c *ImportsController) Import(w http.ResponseWriter, r *http.Request) {
	kind := mux.Vars(r)["kind"]
	if _, err := c.imports.Resolve(kind); err != nil {
		writeError(w, r, err)
		return
	}
	up, err := saveUpload(w, r, c.uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := c.imports.Run(r.Context(), services.Request{
		FilePath:         up.Path,
		OriginalFileName: up.OriginalName,
		ReportKind:       kind,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, result)
}

type runsResponse struct {
	OK    bool                   `json:"ok"`
	Count int                    `json:"count"`
	Data  []*importrun.ImportRun `json:"data"`
}

func (c *ImportsController) ListRuns(w http.ResponseWriter, r *http.Request) {
	query, err := composables.UseQuery(&dtos.RunsQuery{}, r)
	if err != nil {
		writeError(w, r, serrors.Validation("invalid query: %v", err))
		return
	}
	if err := constants.Validate.Struct(query); err != nil {
		writeError(w, r, serrors.Validation("%v", err))
		return
	}
	runs, err := c.runs.List(r.Context(), query.ToFindParams())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []*importrun.ImportRun{}
	}
	writeJSON(w, r, runsResponse{OK: true, Count: len(runs), Data: runs})
}

func (c *ImportsController) ListKinds(w http.ResponseWriter, r *http.Request) {
	kinds := c.imports.Kinds().All()
	writeJSON(w, r, map[string]any{"ok": true, "count": len(kinds), "data": kinds})
}
