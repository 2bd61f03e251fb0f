package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rowhouse/rowhouse/internal/core"
	"github.com/rowhouse/rowhouse/internal/logging"
)

// Version is reported by the API metadata route.
const Version = "0.1.0"

// optionFields documents the processing options shared by upload and
// process, echoed by the metadata route.
var optionFields = map[string]string{
	"mode":         "processing mode: preview, sync or async (default sync)",
	"max":          "maximum number of rows to read",
	"keys":         "comma-separated output keys overriding the header row",
	"cols":         "JSON array of column rules (source/index, key, format)",
	"sheet_index":  "index of the sheet to read",
	"header_index": "index of the header row",
	"lines":        "positive value switches the row payload to JSON Lines",
	"title":        "dataset title",
	"description":  "dataset description",
	"user_ref":     "caller-side reference stored on the dataset",
}

type routeInfo struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters,omitempty"`
}

// handleWelcome returns API metadata and the route catalogue.
func (s *Server) handleWelcome(w http.ResponseWriter, r *http.Request) {
	uploadParams := map[string]string{"file": "the spreadsheet file to upload"}
	processParams := map[string]string{"filename": "the assigned name of the temporary file"}
	for k, v := range optionFields {
		uploadParams[k] = v
		processParams[k] = v
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title":       "rowhouse",
		"description": "spreadsheet ingestion and dataset query API",
		"version":     Version,
		"routes": []routeInfo{
			{Method: "GET", Path: "/", Description: "API metadata"},
			{Method: "GET", Path: "/health", Description: "liveness and ingest slot usage"},
			{Method: "POST", Path: "/upload", Description: "upload and ingest a spreadsheet (multipart/form-data)", Parameters: uploadParams},
			{Method: "PUT", Path: "/process", Description: "re-process an uploaded spreadsheet with new criteria (JSON)", Parameters: processParams},
			{Method: "GET", Path: "/dataset/{dataset_id}", Description: "query a dataset", Parameters: map[string]string{
				"f":     "filter field (dotted path)",
				"o":     "filter operator: eq, ne, gt, gte, lt, lte, in, nin, like, rgx, rcs, starts, ends",
				"v":     "filter value",
				"sort":  "sort field",
				"dir":   "sort direction: asc or desc",
				"start": "0-based row offset",
				"limit": "page size",
			}},
			{Method: "GET", Path: "/check-file/{file_name}", Description: "check whether a temporary upload is still stored"},
		},
	})
}

// handleHealth reports liveness plus ingest slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ingest": s.service.IngestStatus(),
	})
}

// handleUpload ingests a new spreadsheet from a multipart form.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Files.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		badRequest(w, r, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "no file provided")
		return
	}
	defer file.Close()

	opts, err := optionsFromForm(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := s.service.Upload(r.Context(), file, header.Filename, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.writeIngest(w, r, opts, result)
}

// handleProcess re-ingests a previously uploaded temp file. The body is the
// JSON options object; filename names the stored upload.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var opts core.ProcessOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}
	if opts.Filename == "" {
		badRequest(w, r, "filename is required")
		return
	}

	result, err := s.service.Reprocess(r.Context(), opts.Filename, opts)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.writeIngest(w, r, opts, result)
}

// handleDataset queries a dataset's rows with filter, sort and paging.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "datasetID")

	q, err := queryFromRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	rs, err := s.service.Query(r.Context(), id, q)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rs)
}

// handleCheckFile reports whether a temporary upload is still available for
// /process, with size and age when it is.
func (s *Server) handleCheckFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "fileName")

	check, err := s.service.CheckFile(name)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, check)
}

// ---------------------------------------------------------------------------
// Request parsing
// ---------------------------------------------------------------------------

// optionsFromForm reads processing options from multipart form fields.
// Absent fields stay nil so the service can apply defaults or merge stored
// options on reprocess.
func optionsFromForm(r *http.Request) (core.ProcessOptions, error) {
	opts := core.ProcessOptions{
		Mode:        core.Mode(strings.TrimSpace(r.FormValue("mode"))),
		Keys:        core.SplitKeys(r.FormValue("keys")),
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		UserRef:     strings.TrimSpace(r.FormValue("user_ref")),
	}

	var err error
	if opts.Max, err = formIntPtr(r, "max"); err != nil {
		return opts, err
	}
	if opts.SheetIndex, err = formIntPtr(r, "sheet_index"); err != nil {
		return opts, err
	}
	if opts.HeaderIndex, err = formIntPtr(r, "header_index"); err != nil {
		return opts, err
	}
	if opts.Lines, err = formIntPtr(r, "lines"); err != nil {
		return opts, err
	}

	cols, err := core.ParseCols(r.FormValue("cols"))
	if err != nil {
		return opts, err
	}
	opts.Cols = cols

	return opts, nil
}

// formIntPtr parses an optional integer form field; empty means omitted.
func formIntPtr(r *http.Request, name string) (*int, error) {
	val := strings.TrimSpace(r.FormValue(name))
	if val == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return nil, core.ValidationError("%s must be an integer", name)
	}
	return &i, nil
}

// queryFromRequest builds a dataset query from the f/o/v filter triple plus
// sort and paging parameters. A filter field without an operator defaults
// to eq.
func queryFromRequest(r *http.Request) (core.Query, error) {
	params := r.URL.Query()

	q := core.Query{
		Sort:  params.Get("sort"),
		Dir:   params.Get("dir"),
		Start: parseIntParam(r, "start", 0),
		Limit: parseIntParam(r, "limit", 0),
	}

	field := strings.TrimSpace(params.Get("f"))
	opName := strings.TrimSpace(params.Get("o"))
	rawValue := params.Get("v")

	if field == "" && opName == "" && rawValue == "" {
		return q, nil
	}
	if field == "" {
		return core.Query{}, core.ValidationError("filter field f is required")
	}
	if opName == "" {
		opName = string(core.OpEq)
	}
	op, err := core.ParseOperator(opName)
	if err != nil {
		return core.Query{}, err
	}

	q.Filter = &core.Predicate{
		Field: field,
		Op:    op,
		Value: core.ParseValue(op, rawValue),
	}
	return q, nil
}

// parseIntParam parses a non-negative integer query parameter with a
// default for absent or malformed values.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return defaultVal
	}
	return i
}

// ---------------------------------------------------------------------------
// Response writing
// ---------------------------------------------------------------------------

// rowSetSummary is the first line of a JSON Lines response: the row set
// without its rows.
type rowSetSummary struct {
	Total   int           `json:"total"`
	Limit   int           `json:"limit"`
	Skip    int           `json:"skip"`
	Dataset *core.Dataset `json:"dataset"`
}

// writeIngest renders an ingest result. Previews are always a single JSON
// document; row sets switch to JSON Lines when the request asked for lines
// mode.
func (s *Server) writeIngest(w http.ResponseWriter, r *http.Request, opts core.ProcessOptions, result *core.IngestResult) {
	if result.Preview != nil {
		writeJSON(w, http.StatusOK, result.Preview)
		return
	}
	if !opts.LineMode() {
		writeJSON(w, http.StatusOK, result.RowSet)
		return
	}
	writeRowSetLines(w, r, result.RowSet)
}

// writeRowSetLines streams a row set as NDJSON: the summary first, then one
// row document per line.
func writeRowSetLines(w http.ResponseWriter, r *http.Request, rs *core.RowSet) {
	w.Header().Set("Content-Type", "application/x-ndjson")

	enc := json.NewEncoder(w)
	if err := enc.Encode(rowSetSummary{
		Total:   rs.Total,
		Limit:   rs.Limit,
		Skip:    rs.Skip,
		Dataset: rs.Dataset,
	}); err != nil {
		logging.FromContext(r.Context()).Error("ndjson encode failed", "error", err)
		return
	}
	for i := range rs.Rows {
		if err := enc.Encode(rs.Rows[i]); err != nil {
			logging.FromContext(r.Context()).Error("ndjson encode failed", "error", err)
			return
		}
	}
}
