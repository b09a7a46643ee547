package livestore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestServer(t *testing.T, routes map[string]string) (*httptest.Server, *Client) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("auth") != "test-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Permission denied"}`))
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			body = "null"
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), Options{
		DatabaseURL:    server.URL + "/",
		DatabaseSecret: "test-secret",
		Timeout:        2 * time.Second,
		Location:       time.UTC,
	}, zap.NewNop())
	require.NoError(t, err)
	return server, client
}

func TestClient_Devices(t *testing.T) {
	_, client := setupTestServer(t, map[string]string{
		"/status.json": `{"camara2":true,"camara1":true}`,
	})

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"camara1", "camara2"}, devices)
}

func TestClient_Devices_Empty(t *testing.T) {
	_, client := setupTestServer(t, nil)

	devices, err := client.Devices(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestClient_Events(t *testing.T) {
	_, client := setupTestServer(t, map[string]string{
		"/eventos/camara1/2024/05/07.json": `{"evt1":{"start_ts":1715090000,"type":"FALLA_EN_CURSO","duration_ms":600000,"max_temp":9.2},"bad":42}`,
	})

	date := time.Date(2024, 5, 7, 12, 0, 0, 0, time.UTC)
	events, err := client.Events(context.Background(), "camara1", date)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt1", events[0].ExternalID)
	assert.Equal(t, int64(600000), events[0].DurationMS)
}

func TestClient_Events_EmptyDay(t *testing.T) {
	_, client := setupTestServer(t, nil)

	events, err := client.Events(context.Background(), "camara1", time.Now())
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestClient_AllEvents(t *testing.T) {
	_, client := setupTestServer(t, map[string]string{
		"/eventos/camara1.json": `{"2024":{"05":{"07":{"evt1":{"start_ts":20}},"06":{"evt0":{"start_ts":10}}}}}`,
	})

	events, err := client.AllEvents(context.Background(), "camara1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt0", events[0].ExternalID)
}

func TestClient_Readings(t *testing.T) {
	_, client := setupTestServer(t, map[string]string{
		"/status/camara1/2024/05/07.json": `{"1715090000":{"temp":-18.1},"1715090060":{"temp":-18.3},"live":{"temp":-18.3}}`,
	})

	date := time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)
	readings, err := client.Readings(context.Background(), "camara1", date)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, -18.1, readings[0].Temperature)
}

func TestClient_AllReadings(t *testing.T) {
	_, client := setupTestServer(t, map[string]string{
		"/status/camara1.json": `{"live":{"temp":-18.3},"2024":{"05":{"06":{"1715000000":{"temp":-18.0}},"07":{"1715090000":{"temp":-18.1}}}}}`,
	})

	readings, err := client.AllReadings(context.Background(), "camara1")
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, int64(1715000000), readings[0].Timestamp)

	readings, err = client.AllReadings(context.Background(), "camara9")
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestClient_LiveSnapshot(t *testing.T) {
	_, client := setupTestServer(t, map[string]string{
		"/status/camara1/live.json": `{"temp":-18.3,"state":"OK","ts":1715090060}`,
	})

	snap, err := client.LiveSnapshot(context.Background(), "camara1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "camara1", snap.DeviceID)
	assert.Equal(t, int64(1715090060), snap.TS)

	snap, err = client.LiveSnapshot(context.Background(), "camara9")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), Options{DatabaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Devices(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), Options{}, zap.NewNop())
	require.Error(t, err)
}

func TestDayPaths(t *testing.T) {
	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	// 02:00 UTC on the 8th is still the 7th in Santiago
	date := time.Date(2024, 5, 8, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "eventos/camara1/2024/05/07", EventDayPath("camara1", date, loc))
	assert.Equal(t, "status/camara1/2024/05/08", StatusDayPath("camara1", date, time.UTC))
}

func TestClient_Subscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/eventos/camara1/2024/05/07.json", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		frames := []string{
			"event: put\ndata: {\"path\":\"/\",\"data\":{\"evt1\":{\"start_ts\":1}}}\n\n",
			"event: keep-alive\ndata: null\n\n",
			"event: patch\ndata: {\"path\":\"/evt1\",\"data\":{\"max_temp\":9.5}}\n\n",
			"event: cancel\ndata: null\n\n",
		}
		for _, f := range frames {
			_, _ = fmt.Fprint(w, f)
			flusher.Flush()
		}
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), Options{DatabaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)

	var mu sync.Mutex
	var changes []Change
	err = client.Subscribe(context.Background(), "eventos/camara1/2024/05/07", func(_ context.Context, c Change) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, c)
	})
	assert.ErrorIs(t, err, ErrStreamCancelled)

	require.Len(t, changes, 2)
	assert.Equal(t, ChangePut, changes[0].Event)
	assert.Nil(t, changes[0].Segments())
	assert.Equal(t, ChangePatch, changes[1].Event)
	assert.Equal(t, []string{"evt1"}, changes[1].Segments())
	assert.JSONEq(t, `{"max_temp":9.5}`, string(changes[1].Data))
}

func TestReadEvents_Framing(t *testing.T) {
	input := ": comment\nevent: put\ndata: {\"a\":\ndata: 1}\n\nevent: auth_revoked\ndata: credential expired\n\n"

	var got []string
	err := readEvents(strings.NewReader(input), func(event, data string) error {
		got = append(got, event+"|"+data)
		return nil
	})
	assert.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, []string{"put|{\"a\":\n1}", "auth_revoked|credential expired"}, got)
}
