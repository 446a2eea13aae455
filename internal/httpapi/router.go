package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/rhythmkit/scoregraph/internal/backup"
	"github.com/rhythmkit/scoregraph/internal/chart"
	"github.com/rhythmkit/scoregraph/internal/metrics"
	"github.com/rhythmkit/scoregraph/internal/parse"
	"github.com/rhythmkit/scoregraph/internal/reconcile"
	"github.com/rhythmkit/scoregraph/internal/songdata"
	"github.com/rhythmkit/scoregraph/internal/store"
)

// maxImportBytes bounds uploaded export files.
const maxImportBytes = 16 << 20

// Handler serves the score tracker API.
type Handler struct {
	importer *reconcile.Importer
	st       store.Store
	meta     *songdata.Meta
	log      zerolog.Logger
}

// NewRouter creates the HTTP router. meta is optional; without it the score
// endpoints omit BPI values.
func NewRouter(log zerolog.Logger, importer *reconcile.Importer, st store.Store, meta *songdata.Meta) http.Handler {
	h := &Handler{importer: importer, st: st, meta: meta, log: log}

	mux := http.NewServeMux()
	mux.Handle("/healthz", http.HandlerFunc(h.health))
	mux.Handle("/readyz", http.HandlerFunc(h.health))
	mux.Handle("POST /v1/import", http.HandlerFunc(h.importScores))
	mux.Handle("GET /v1/score", http.HandlerFunc(h.score))
	mux.Handle("POST /v1/score", http.HandlerFunc(h.editScore))
	mux.Handle("GET /v1/scores", http.HandlerFunc(h.scores))
	mux.Handle("GET /v1/diffs", http.HandlerFunc(h.diffs))
	mux.Handle("DELETE /v1/diffs", http.HandlerFunc(h.clearDiffs))
	mux.Handle("GET /v1/bpi", http.HandlerFunc(h.bpi))
	mux.Handle("POST /v1/skill", http.HandlerFunc(h.skill))
	mux.Handle("GET /v1/backup", http.HandlerFunc(h.exportBackup))
	mux.Handle("POST /v1/backup", http.HandlerFunc(h.importBackup))

	return CORS(RequestID(AccessLog(log, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// importScores ingests one export file. The body is the raw export text;
// the format is given as a query parameter or sniffed from the header line.
func (h *Handler) importScores(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	text := string(body)

	var format parse.Format
	if fs := r.URL.Query().Get("format"); fs != "" {
		format, err = parse.ParseFormat(fs)
	} else {
		format, err = parse.Sniff(text)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode := chart.SP
	if ms := r.URL.Query().Get("mode"); ms != "" {
		if mode, err = chart.ParseMode(ms); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	alternate := r.URL.Query().Get("alternate") == "true"

	rep, err := h.importer.ImportText(r.Context(), format, mode, text, alternate)
	if err != nil {
		if errors.Is(err, parse.ErrFormat) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, songdata.ErrFetch) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	unresolved := rep.Unresolved
	if unresolved == nil {
		unresolved = []string{}
	}
	writeJSON(w, map[string]any{
		"format":     format.String(),
		"parsed":     rep.Parsed,
		"merged":     rep.Merged,
		"improved":   rep.Improved,
		"unresolved": unresolved,
	})
}

type scoreResponse struct {
	Mode       string   `json:"mode"`
	SongID     int      `json:"song_id"`
	Diff       string   `json:"diff"`
	Score      int      `json:"score"`
	Lamp       int      `json:"lamp"`
	LampName   string   `json:"lamp_name"`
	Miss       int      `json:"miss"` // -1 = never recorded
	Unlocked   bool     `json:"unlocked"`
	LastPlayed string   `json:"last_played,omitempty"`
	BPI        *float64 `json:"bpi,omitempty"`
}

func (h *Handler) toScoreResponse(key chart.Key, rec chart.ScoreRecord, ts chart.Timestamps) scoreResponse {
	resp := scoreResponse{
		Mode:       key.Mode.String(),
		SongID:     key.SongID,
		Diff:       key.Diff.String(),
		Score:      rec.Score,
		Lamp:       int(rec.Lamp),
		LampName:   rec.Lamp.String(),
		Miss:       rec.Miss.Sentinel(),
		Unlocked:   rec.Unlocked,
		LastPlayed: ts.LastPlayed,
	}
	if h.meta != nil {
		if info, ok := h.meta.Chart(key.SongID, key.Diff); ok && info.Notes > 0 {
			if v, err := metrics.BPI(info.WorldRecord, info.Average, info.Notes, rec.Score, info.Coef); err == nil {
				resp.BPI = &v
			}
		}
	}
	return resp
}

func keyFromQuery(r *http.Request) (chart.Key, error) {
	mode, err := chart.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		return chart.Key{}, err
	}
	songID, err := strconv.Atoi(r.URL.Query().Get("song"))
	if err != nil {
		return chart.Key{}, errors.New("bad song parameter")
	}
	diff, err := chart.ParseDifficulty(r.URL.Query().Get("diff"))
	if err != nil {
		return chart.Key{}, err
	}
	return chart.Key{Mode: mode, SongID: songID, Diff: diff}, nil
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	key, err := keyFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, ts, err := h.st.Get(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "no record", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.toScoreResponse(key, rec, ts))
}

// editScore is the manual-edit path: a force overwrite that bypasses the
// merge comparisons and clears the chart's pending diff.
func (h *Handler) editScore(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode     string `json:"mode"`
		SongID   int    `json:"song_id"`
		Diff     string `json:"diff"`
		Score    int    `json:"score"`
		Lamp     int    `json:"lamp"`
		Miss     int    `json:"miss"` // -1 = never recorded
		Unlocked bool   `json:"unlocked"`
		PlayedAt string `json:"played_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	mode, err := chart.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	diff, err := chart.ParseDifficulty(req.Diff)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Score < 0 || !chart.Lamp(req.Lamp).Valid() || req.SongID <= 0 {
		http.Error(w, "record out of range", http.StatusBadRequest)
		return
	}
	key := chart.Key{Mode: mode, SongID: req.SongID, Diff: diff}
	rec := chart.ScoreRecord{
		Score:    req.Score,
		Lamp:     chart.Lamp(req.Lamp),
		Miss:     chart.MissFromSentinel(req.Miss),
		Unlocked: req.Unlocked,
	}
	if err := h.importer.ForceWrite(r.Context(), key, rec, req.PlayedAt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (h *Handler) scores(w http.ResponseWriter, r *http.Request) {
	snap, err := h.st.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]scoreResponse, 0, len(snap.Best))
	for key, rec := range snap.Best {
		out = append(out, h.toScoreResponse(key, rec, snap.Times[key]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SongID != out[j].SongID {
			return out[i].SongID < out[j].SongID
		}
		if out[i].Mode != out[j].Mode {
			return out[i].Mode < out[j].Mode
		}
		return out[i].Diff < out[j].Diff
	})
	writeJSON(w, map[string]any{"scores": out, "count": len(out)})
}

type diffResponse struct {
	Mode   string           `json:"mode"`
	SongID int              `json:"song_id"`
	Diff   string           `json:"diff"`
	Score  *chart.FieldDiff `json:"score,omitempty"`
	Lamp   *chart.FieldDiff `json:"lamp,omitempty"`
	Miss   *chart.FieldDiff `json:"miss,omitempty"`
}

func (h *Handler) diffs(w http.ResponseWriter, r *http.Request) {
	snap, err := h.st.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	out := make([]diffResponse, 0, len(snap.Diffs))
	for key, d := range snap.Diffs {
		out = append(out, diffResponse{
			Mode:   key.Mode.String(),
			SongID: key.SongID,
			Diff:   key.Diff.String(),
			Score:  d.Score,
			Lamp:   d.Lamp,
			Miss:   d.Miss,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SongID < out[j].SongID })
	writeJSON(w, map[string]any{"diffs": out, "count": len(out)})
}

func (h *Handler) clearDiffs(w http.ResponseWriter, r *http.Request) {
	if err := h.st.ClearDiffs(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

// bpi computes a one-off BPI from explicit reference values. An unavailable
// BPI is reported as null, never zero.
func (h *Handler) bpi(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	wr, err1 := strconv.Atoi(q.Get("wr"))
	avg, err2 := strconv.Atoi(q.Get("avg"))
	notes, err3 := strconv.Atoi(q.Get("notes"))
	personal, err4 := strconv.Atoi(q.Get("score"))
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		http.Error(w, "wr, avg, notes and score are required integers", http.StatusBadRequest)
		return
	}
	pow := 0.0
	if ps := q.Get("pow"); ps != "" {
		if pow, err1 = strconv.ParseFloat(ps, 64); err1 != nil {
			http.Error(w, "bad pow parameter", http.StatusBadRequest)
			return
		}
	}
	v, err := metrics.BPI(wr, avg, notes, personal, pow)
	if err != nil {
		writeJSON(w, map[string]any{"bpi": nil, "available": false})
		return
	}
	writeJSON(w, map[string]any{"bpi": v, "available": true})
}

func (h *Handler) skill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Variant string `json:"variant,omitempty"` // "skill" (default) or "index"
		Items   []struct {
			Difficulty     float64 `json:"difficulty"`
			Discrimination float64 `json:"discrimination,omitempty"`
			Success        bool    `json:"success"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	items := make([]metrics.Outcome, len(req.Items))
	for i, it := range req.Items {
		items[i] = metrics.Outcome{
			Difficulty:     it.Difficulty,
			Discrimination: it.Discrimination,
			Success:        it.Success,
		}
	}
	var est float64
	if req.Variant == "index" {
		est = metrics.EstimateIndex(items)
	} else {
		est = metrics.EstimateSkill(items)
	}
	writeJSON(w, map[string]any{"estimate": est, "items": len(items)})
}

func (h *Handler) exportBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := h.st.Snapshot(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := backup.Encode(snap)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"data": data, "records": len(snap.Best)})
}

func (h *Handler) importBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxImportBytes)).Decode(&req); err != nil {
		http.Error(w, "bad request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	snap, err := backup.Decode(req.Data)
	if err != nil {
		if errors.Is(err, backup.ErrCorrupt) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := h.st.Restore(r.Context(), snap); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"ok": true, "records": len(snap.Best)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
