// client_test.go - Tests fuer den HTTP-Client und die Wire-Typen
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nehal119/merlion-testing/ts"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return NewClient(base, srv.Client())
}

func TestCheckError(t *testing.T) {
	// Unter 400 ist alles in Ordnung
	require.NoError(t, checkError(&http.Response{StatusCode: http.StatusOK}, nil))

	err := checkError(&http.Response{StatusCode: http.StatusNotFound}, []byte(`{"error":"model not found"}`))
	var se StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "model not found", se.ErrorMessage)

	// Kein JSON: Body wird als Meldung uebernommen
	err = checkError(&http.Response{StatusCode: http.StatusInternalServerError}, []byte("kaboom"))
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "kaboom", se.ErrorMessage)
}

func TestClientVersion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/version", r.URL.Path)
		fmt.Fprint(w, `{"version":"1.2.3"}`)
	})

	v, err := c.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v)
}

func TestClientTrain(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/train", r.URL.Path)

		var req TrainRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "demo", req.Model)
		require.NotNil(t, req.Series)
		assert.Len(t, req.Series.Times, 2)

		json.NewEncoder(w).Encode(TrainResponse{
			Model:     req.Model,
			RunID:     "r1",
			Epochs:    3,
			BestEpoch: 2,
			TrainLoss: []float64{1.5, 1.0, 0.8},
		})
	})

	times := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
	}
	resp, err := c.Train(context.Background(), &TrainRequest{
		Model:  "demo",
		Series: &Series{Names: []string{"a"}, Times: times, Values: [][]float64{{1}, {2}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "demo", resp.Model)
	assert.Equal(t, "r1", resp.RunID)
	assert.Equal(t, 3, resp.Epochs)
	assert.Equal(t, 2, resp.BestEpoch)
	assert.Len(t, resp.TrainLoss, 3)
}

func TestClientForecastError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model not found"}`)
	})

	_, err := c.Forecast(context.Background(), &ForecastRequest{Model: "demo", Horizon: 4})
	var se StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "model not found", se.ErrorMessage)
}

func TestClientDelete(t *testing.T) {
	var gotMethod, gotPath string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	})

	require.NoError(t, c.Delete(context.Background(), "demo"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/models/demo", gotPath)
}

func TestClientHeartbeat(t *testing.T) {
	var gotMethod string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
	})

	require.NoError(t, c.Heartbeat(context.Background()))
	assert.Equal(t, http.MethodHead, gotMethod)
}

func TestSeriesRoundtrip(t *testing.T) {
	times := []time.Time{
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC),
	}
	orig, err := ts.FromMatrix([]string{"a", "b"}, times, [][]float64{{1, 2}, {3, 4}, {5, 6}})
	require.NoError(t, err)

	back, err := FromTimeSeries(orig).TimeSeries()
	require.NoError(t, err)
	assert.Equal(t, orig.Names(), back.Names())
	assert.Equal(t, orig.Times(), back.Times())
	assert.Equal(t, orig.Matrix(), back.Matrix())
}

func TestSeriesInvalid(t *testing.T) {
	var s *Series
	_, err := s.TimeSeries()
	require.ErrorIs(t, err, ts.ErrEmpty)

	// Zeilenanzahl passt nicht zu den Zeitstempeln
	s = &Series{Names: []string{"a"}, Times: []time.Time{time.Now()}, Values: nil}
	_, err = s.TimeSeries()
	require.Error(t, err)
}

func TestDurationMarshal(t *testing.T) {
	b, err := json.Marshal(Duration{5 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `"5m0s"`, string(b))

	b, err = json.Marshal(Duration{-time.Second})
	require.NoError(t, err)
	assert.Equal(t, `-1`, string(b))
}

func TestDurationUnmarshal(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{`30`, 30 * time.Second},
		{`"10m"`, 10 * time.Minute},
		{`-1`, time.Duration(math.MaxInt64)},
		{`"-1h"`, time.Duration(math.MaxInt64)},
	}
	for _, tt := range cases {
		var d Duration
		require.NoError(t, json.Unmarshal([]byte(tt.in), &d), tt.in)
		assert.Equal(t, tt.want, d.Duration, tt.in)
	}

	var d Duration
	require.Error(t, json.Unmarshal([]byte(`{"x":1}`), &d))
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "bad request: horizon missing", StatusError{Status: "bad request", ErrorMessage: "horizon missing"}.Error())
	assert.Equal(t, "bad request", StatusError{Status: "bad request"}.Error())
	assert.Equal(t, "horizon missing", StatusError{ErrorMessage: "horizon missing"}.Error())
	assert.NotEmpty(t, StatusError{}.Error())
}
