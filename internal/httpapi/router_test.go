package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rhythmkit/scoregraph/internal/httpapi"
	"github.com/rhythmkit/scoregraph/internal/reconcile"
	"github.com/rhythmkit/scoregraph/internal/resolve"
	"github.com/rhythmkit/scoregraph/internal/songdata"
	"github.com/rhythmkit/scoregraph/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewMemStore()
	res := resolve.New(&songdata.Tables{
		TitleToID: map[string]int{"GAMBOL": 1001, "quell": 1002},
	}, nil)
	im := reconcile.NewImporter(st, res, reconcile.Config{
		Logger: zerolog.Nop(),
		Now:    func() string { return "2025-06-01T12:00:00Z" },
	})
	srv := httptest.NewServer(httpapi.NewRouter(zerolog.Nop(), im, st, nil))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

const counterExport = "title,difficulty,clearlamp,score,misscount\n" +
	"GAMBOL,SPA,HC,1530,12\n" +
	"quell,SPH,EC,980,\n"

func TestImportAndRead(t *testing.T) {
	srv := newTestServer(t)

	// The format is sniffed from the header line.
	resp, err := http.Post(srv.URL+"/v1/import", "text/plain", strings.NewReader(counterExport))
	if err != nil {
		t.Fatalf("POST /v1/import: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", resp.StatusCode)
	}
	var rep struct {
		Format   string `json:"format"`
		Parsed   int    `json:"parsed"`
		Merged   int    `json:"merged"`
		Improved int    `json:"improved"`
	}
	decodeBody(t, resp, &rep)
	if rep.Format != "counter" || rep.Parsed != 2 || rep.Merged != 2 || rep.Improved != 2 {
		t.Errorf("report = %+v", rep)
	}

	resp, err = http.Get(srv.URL + "/v1/score?mode=SP&song=1001&diff=A")
	if err != nil {
		t.Fatalf("GET /v1/score: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score status = %d", resp.StatusCode)
	}
	var sc struct {
		Score int `json:"score"`
		Lamp  int `json:"lamp"`
		Miss  int `json:"miss"`
	}
	decodeBody(t, resp, &sc)
	if sc.Score != 1530 || sc.Lamp != 5 || sc.Miss != 12 {
		t.Errorf("score = %+v", sc)
	}

	// The second row carried no miss count; it must read back as -1.
	resp, err = http.Get(srv.URL + "/v1/score?mode=SP&song=1002&diff=H")
	if err != nil {
		t.Fatalf("GET /v1/score: %v", err)
	}
	decodeBody(t, resp, &sc)
	if sc.Miss != -1 {
		t.Errorf("absent miss = %d, want -1", sc.Miss)
	}
}

func TestScoreNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/score?mode=SP&song=999&diff=A")
	if err != nil {
		t.Fatalf("GET /v1/score: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDiffsLifecycle(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/import", "text/plain", strings.NewReader(counterExport))
	if err != nil {
		t.Fatalf("POST /v1/import: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/diffs")
	if err != nil {
		t.Fatalf("GET /v1/diffs: %v", err)
	}
	var diffs struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &diffs)
	if diffs.Count != 2 {
		t.Errorf("diff count = %d, want 2", diffs.Count)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/diffs", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /v1/diffs: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/v1/diffs")
	if err != nil {
		t.Fatalf("GET /v1/diffs: %v", err)
	}
	decodeBody(t, resp, &diffs)
	if diffs.Count != 0 {
		t.Errorf("diff count after clear = %d", diffs.Count)
	}
}

func TestBackupRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/import", "text/plain", strings.NewReader(counterExport))
	if err != nil {
		t.Fatalf("POST /v1/import: %v", err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/v1/backup")
	if err != nil {
		t.Fatalf("GET /v1/backup: %v", err)
	}
	var exported struct {
		Data    string `json:"data"`
		Records int    `json:"records"`
	}
	decodeBody(t, resp, &exported)
	if exported.Records != 2 || exported.Data == "" {
		t.Fatalf("export = %+v", exported)
	}

	body, _ := json.Marshal(map[string]string{"data": exported.Data})
	resp, err = http.Post(srv.URL+"/v1/backup", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("POST /v1/backup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("restore status = %d", resp.StatusCode)
	}
}

func TestBackupCorrupt(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/backup", "application/json",
		strings.NewReader(`{"data":"bm90IGEgYmFja3Vw"}`))
	if err != nil {
		t.Fatalf("POST /v1/backup: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBPIUnavailable(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/bpi?wr=2000&avg=2000&notes=1000&score=1900")
	if err != nil {
		t.Fatalf("GET /v1/bpi: %v", err)
	}
	var out struct {
		BPI       *float64 `json:"bpi"`
		Available bool     `json:"available"`
	}
	decodeBody(t, resp, &out)
	if out.Available || out.BPI != nil {
		t.Errorf("bpi = %+v, want unavailable", out)
	}
}

func TestImportBadFormat(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/v1/import", "text/plain",
		strings.NewReader("this is not any known export"))
	if err != nil {
		t.Fatalf("POST /v1/import: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
