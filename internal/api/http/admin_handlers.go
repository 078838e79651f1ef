package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-clinical/internal/caseload"
	"github.com/mind-engage/mindengage-clinical/internal/clinical"
	"github.com/mind-engage/mindengage-clinical/internal/storage"
	syncx "github.com/mind-engage/mindengage-clinical/internal/sync"
)

// ImportCasesHandler upserts a YAML case pack sent as the request body. When
// archive is set the accepted pack is also stored verbatim.
func ImportCasesHandler(cases clinical.CaseStore, archive storage.BlobStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8*maxBody))
		if err != nil {
			fail(w, http.StatusBadRequest, "invalid_request", "case pack too large or unreadable")
			return
		}
		pack, err := caseload.Parse(bytes.NewReader(raw))
		if err != nil {
			if !clinical.IsValidation(err) {
				err = clinical.Invalid("case_pack", err.Error())
			}
			respondError(w, r, err)
			return
		}
		n, err := caseload.Import(r.Context(), cases, pack)
		if err != nil {
			respondError(w, r, err)
			return
		}
		out := map[string]any{"imported": n}
		if archive != nil {
			key, err := archive.Put(storage.PackKey(time.Now()), bytes.NewReader(raw))
			if err != nil {
				slog.Warn("archive case pack", "err", err)
			} else {
				out["archived_as"] = key
			}
		}
		ok(w, out, strconv.Itoa(n)+" cases imported")
	}
}

// SessionEventsHandler lists the lifecycle events of one session.
func SessionEventsHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := events.ListByKey(r.Context(), chi.URLParam(r, "sessionID"))
		if err != nil {
			respondError(w, r, clinical.Internal("list session events", err))
			return
		}
		ok(w, out, "")
	}
}

// EventSearchHandler queries the event log, newest first, filtered by q.
func EventSearchHandler(events *syncx.EventRepo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		out, err := events.Search(r.Context(), r.URL.Query().Get("q"), limit)
		if err != nil {
			respondError(w, r, clinical.Internal("search events", err))
			return
		}
		ok(w, out, "")
	}
}
