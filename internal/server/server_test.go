package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/augur/internal/backtest"
	"github.com/aristath/augur/internal/domain"
	"github.com/aristath/augur/internal/engine"
	"github.com/aristath/augur/internal/events"
	"github.com/aristath/augur/internal/history"
	"github.com/aristath/augur/internal/scheduler"
)

type fakeEngine struct {
	predictErr error
	doubles    []domain.DoubleOutcome
	lastLimit  int
}

func (f *fakeEngine) PredictDouble(context.Context) (domain.DoublePrediction, error) {
	if f.predictErr != nil {
		return domain.DoublePrediction{}, f.predictErr
	}
	return domain.DoublePrediction{Color: domain.Red, Number: 3, Confidence: 72.5, RawConfidence: 72.5, SampleSize: 100}, nil
}

func (f *fakeEngine) PredictMines(context.Context) (domain.MinesPrediction, error) {
	if f.predictErr != nil {
		return domain.MinesPrediction{}, f.predictErr
	}
	return domain.MinesPrediction{SafeCells: []int{0, 1, 2}, Confidence: 80, RawConfidence: 80}, nil
}

func (f *fakeEngine) Backtest(_ context.Context, game domain.Game) (backtest.Result, error) {
	if f.predictErr != nil {
		return backtest.Result{}, f.predictErr
	}
	return backtest.Result{Game: game, Trials: 89, Wins: 40, Losses: 49}, nil
}

func (f *fakeEngine) Stats() map[domain.Game]domain.StatsRecord {
	return map[domain.Game]domain.StatsRecord{
		domain.GameDouble: {Wins: 3, Losses: 1, WinRate: 0.75},
		domain.GameMines:  {},
	}
}

func (f *fakeEngine) StatsFor(game domain.Game) (domain.StatsRecord, error) {
	return f.Stats()[game], nil
}

func (f *fakeEngine) DoubleHistory(n int) []domain.DoubleOutcome {
	f.lastLimit = n
	if n < len(f.doubles) {
		return f.doubles[:n]
	}
	return f.doubles
}

func (f *fakeEngine) MinesHistory(n int) []domain.MinesOutcome {
	f.lastLimit = n
	return []domain.MinesOutcome{}
}

func (f *fakeEngine) Status() engine.Status {
	return engine.Status{HistorySizes: map[domain.Game]int{domain.GameDouble: len(f.doubles)}}
}

type fakeJobs struct{}

func (fakeJobs) Status() []scheduler.JobStatus {
	return []scheduler.JobStatus{{Name: "refresh_double", Schedule: "0 */5 * * * *", Runs: 2}}
}

func newTestServer(t *testing.T, eng *fakeEngine, bus *events.Bus) *Server {
	t.Helper()
	s := New(Config{
		Log:     zerolog.Nop(),
		Engine:  eng,
		Jobs:    fakeJobs{},
		Bus:     bus,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "augur_up 1\n") }),
		Port:    0,
		DevMode: true,
	})
	s.system.cpuPercent = func() ([]float64, error) { return []float64{12.5}, nil }
	s.system.memPercent = func() (float64, error) { return 40, nil }
	return s
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)
	rec := do(t, s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestCORSWithoutCredentials(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/stats/", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.org")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPredictions(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)

	rec := do(t, s, http.MethodGet, "/api/predictions/double")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "RED", body["color"])
	assert.Equal(t, 72.5, body["raw_confidence"])

	rec = do(t, s, http.MethodGet, "/api/predictions/mines")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["safe_cells"], 3)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		want   int
	}{
		{"insufficient data", fmt.Errorf("predict: %w", history.ErrInsufficientData), http.MethodGet, "/api/predictions/double", http.StatusUnprocessableEntity},
		{"unexpected", errors.New("disk on fire"), http.MethodGet, "/api/predictions/mines", http.StatusInternalServerError},
		{"unknown game backtest", nil, http.MethodPost, "/api/backtest/crash", http.StatusBadRequest},
		{"unknown game stats", nil, http.MethodGet, "/api/stats/crash", http.StatusBadRequest},
		{"unknown game history", nil, http.MethodGet, "/api/history/crash", http.StatusBadRequest},
		{"backtest short history", history.ErrInsufficientData, http.MethodPost, "/api/backtest/mines", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeEngine{predictErr: tt.err}, nil)
			rec := do(t, s, tt.method, tt.path)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestBacktest(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)

	rec := do(t, s, http.MethodPost, "/api/backtest/double")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "double", body["game"])
	assert.Equal(t, 89.0, body["trials"])

	rec = do(t, s, http.MethodGet, "/api/backtest/double")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStats(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)

	rec := do(t, s, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec), "double")

	rec = do(t, s, http.MethodGet, "/api/stats/double")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0.75, decode(t, rec)["win_rate"])
}

func TestHistoryLimit(t *testing.T) {
	eng := &fakeEngine{}
	for i := 0; i < 30; i++ {
		eng.doubles = append(eng.doubles, domain.DoubleOutcome{ID: fmt.Sprint(i), Color: domain.Black, Number: 9})
	}
	s := newTestServer(t, eng, nil)

	rec := do(t, s, http.MethodGet, "/api/history/double")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["outcomes"], defaultHistoryLimit)

	rec = do(t, s, http.MethodGet, "/api/history/double?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["outcomes"], 5)

	do(t, s, http.MethodGet, "/api/history/mines?limit=5000")
	assert.Equal(t, maxHistoryLimit, eng.lastLimit)

	rec = do(t, s, http.MethodGet, "/api/history/double?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)

	rec := do(t, s, http.MethodGet, "/api/system/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, 12.5, resp.CPUPercent)
	assert.Equal(t, 40.0, resp.MemoryPercent)
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "refresh_double", resp.Jobs[0].Name)

	rec = do(t, s, http.MethodGet, "/api/system/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["jobs"], 1)
}

func TestMetricsRoute(t *testing.T) {
	s := newTestServer(t, &fakeEngine{}, nil)
	rec := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "augur_up 1")
}

func TestEventsStream(t *testing.T) {
	bus := events.NewBus()
	s := newTestServer(t, &fakeEngine{}, bus)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events/stream?types=PREDICTION_MADE", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readData := func() string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, "data: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			}
		}
	}

	assert.Contains(t, readData(), `"connected"`)
	assert.Equal(t, 1, bus.SubscriberCount(events.PredictionMade))
	assert.Equal(t, 0, bus.SubscriberCount(events.BacktestCompleted))

	em := events.NewManager(bus, zerolog.Nop())
	em.EmitTyped("engine", &events.BacktestCompletedData{Game: "double"})
	em.EmitTyped("engine", &events.PredictionMadeData{Game: "mines", Confidence: 81})

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(readData()), &msg))
	assert.Equal(t, "PREDICTION_MADE", msg["type"])
	assert.Equal(t, "engine", msg["module"])

	cancel()
	assert.Eventually(t, func() bool {
		return bus.SubscriberCount(events.PredictionMade) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
