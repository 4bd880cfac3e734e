package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tides-tomes-go/internal/cache"
	"github.com/irfndi/tides-tomes-go/internal/models"
	"github.com/irfndi/tides-tomes-go/internal/synth"
	"github.com/irfndi/tides-tomes-go/internal/upstream"
)

var fixedNow = time.Date(2025, time.November, 10, 12, 0, 0, 0, time.UTC)

type harness struct {
	calls *int32
	srv   *httptest.Server
	cache *cache.ResponseCache
	deps  Dependencies
}

func newHarness(t *testing.T, handler http.HandlerFunc) *harness {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	now := func() time.Time { return fixedNow }
	rc := cache.NewResponseCache(cache.DefaultTTLPolicy(), nil, cache.WithClock(now))
	exec := upstream.NewExecutor(upstream.DefaultConfig(), srv.Client(), nil,
		upstream.WithSleeper(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }))
	s, err := synth.New(synth.DefaultConfig(), nil, synth.DefaultProfiles()...)
	require.NoError(t, err)

	return &harness{
		calls: &calls,
		srv:   srv,
		cache: rc,
		deps:  Dependencies{Cache: rc, Executor: exec, Synthesizer: s, Now: now},
	}
}

func (h *harness) Calls() int { return int(atomic.LoadInt32(h.calls)) }

func jsonHandler(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newWeather(t *testing.T, h *harness) *WeatherAdapter {
	t.Helper()
	spec, err := WeatherCorrelations(models.DefaultCorrelationEpsilon)
	require.NoError(t, err)
	a, err := NewWeatherAdapter(SourceConfig{BaseURL: h.srv.URL, APIKey: "k", Timeout: time.Second}, spec, h.deps)
	require.NoError(t, err)
	return a
}

const weatherBody = `{"data":[{"temp":7.5,"rh":78,"wind_spd":4.2,"pres":1009,"ob_time":"2025-11-10 11:45","city_name":"Edinburgh","weather":{"description":"light rain"}}]}`

func TestWeatherAdapter_ServesFreshCacheEntryWithoutNetwork(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, weatherBody))
	a := newWeather(t, h)

	region, _ := LookupRegion("edinburgh")
	spec, err := a.Request(region)
	require.NoError(t, err)

	cached := models.WeatherObservation{Region: "edinburgh", Temperature: 9.1, Humidity: 80}
	h.cache.SetAt(spec, cached, fixedNow.Add(-600*time.Second))

	result := a.Fetch(context.Background(), Params{"region": "edinburgh"})
	require.True(t, result.IsLive())
	assert.True(t, result.Cached)
	assert.Equal(t, cached, result.Payload)
	assert.Equal(t, 0, h.Calls())
}

func TestWeatherAdapter_AuthErrorFallsBackWithoutRetry(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusUnauthorized, `{"error":"bad key"}`))
	a := newWeather(t, h)

	result := a.Fetch(context.Background(), Params{"region": "islay"})
	require.True(t, result.IsFallback())
	assert.Equal(t, "auth_error", result.Reason)
	assert.Equal(t, 1, h.Calls())

	obs, ok := result.Payload.(models.WeatherObservation)
	require.True(t, ok)
	assert.Equal(t, "islay", obs.Region)
	assert.GreaterOrEqual(t, obs.Humidity, 0.0)
	assert.LessOrEqual(t, obs.Humidity, 100.0)
	assert.GreaterOrEqual(t, obs.WindSpeed, 0.0)
	require.NotNil(t, obs.Warehouse)

	// Fallbacks are not cached, so the next call tries the upstream again.
	a.Fetch(context.Background(), Params{"region": "islay"})
	assert.Equal(t, 2, h.Calls())
}

func TestWeatherAdapter_ExhaustedRetriesFallBack(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusServiceUnavailable, `{}`))
	a := newWeather(t, h)

	result := a.Fetch(context.Background(), Params{"region": "glasgow"})
	require.True(t, result.IsFallback())
	assert.Equal(t, "server_error", result.Reason)
	assert.Equal(t, 3, h.Calls())
}

func TestWeatherAdapter_LiveNormalizesAndCaches(t *testing.T) {
	var gotKey, gotLat string
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotLat = r.URL.Query().Get("lat")
		jsonHandler(http.StatusOK, weatherBody)(w, r)
	})
	a := newWeather(t, h)

	result := a.Fetch(context.Background(), Params{"region": "Edinburgh"})
	require.True(t, result.IsLive())
	assert.False(t, result.Cached)
	assert.Equal(t, "k", gotKey)
	assert.Equal(t, "55.9533", gotLat)

	obs := result.Payload.(models.WeatherObservation)
	assert.Equal(t, 7.5, obs.Temperature)
	assert.Equal(t, 78.0, obs.Humidity)
	assert.Equal(t, "light rain", obs.Description)
	assert.Equal(t, time.Date(2025, 11, 10, 11, 45, 0, 0, time.UTC), obs.ObservedAt)
	require.NotNil(t, obs.Warehouse)
	assert.Equal(t, 9.4, obs.Warehouse.Temperature)

	again := a.Fetch(context.Background(), Params{"region": "edinburgh"})
	require.True(t, again.IsLive())
	assert.True(t, again.Cached)
	assert.Equal(t, 1, h.Calls())
}

func TestWeatherAdapter_InvalidShapeIsTreatedAsFailure(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty data", `{"data":[]}`},
		{"missing humidity", `{"data":[{"temp":7.5,"wind_spd":4.2}]}`},
		{"humidity out of range", `{"data":[{"temp":7.5,"rh":140,"wind_spd":4.2}]}`},
		{"wrong type", `{"data":[{"temp":"warm","rh":70,"wind_spd":4.2}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, jsonHandler(http.StatusOK, tt.body))
			a := newWeather(t, h)

			result := a.Fetch(context.Background(), Params{"region": "dufftown"})
			require.True(t, result.IsFallback())
			assert.Equal(t, ReasonInvalidPayload, result.Reason)
			assert.Equal(t, 0, h.cache.Len())
		})
	}
}

func TestWeatherAdapter_UnknownRegionIsRejectedBeforeIO(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, weatherBody))
	a := newWeather(t, h)

	for _, params := range []Params{{"region": "atlantis"}, {}} {
		result := a.Fetch(context.Background(), params)
		assert.True(t, IsInvalidParams(result))
		assert.ErrorIs(t, result.Err, ErrInvalidParams)
	}
	assert.Equal(t, 0, h.Calls())
}

func TestWeatherAdapter_CanceledContextStillReturnsValue(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, weatherBody))
	a := newWeather(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := a.Fetch(ctx, Params{"region": "aberlour"})
	require.True(t, result.IsFallback())
	assert.Equal(t, ReasonCanceled, result.Reason)
	assert.NotNil(t, result.Payload)
}

func TestWarehouse(t *testing.T) {
	edinburgh, _ := LookupRegion("edinburgh")
	aberlour, _ := LookupRegion("aberlour")

	w := Warehouse(edinburgh, 7.5, 78, 4.2, fixedNow)
	assert.Equal(t, 9.4, w.Temperature)
	assert.Equal(t, 1.223, w.AgingRate)
	assert.False(t, w.Optimal)
	assert.Equal(t, "Good", w.Rating)

	summer := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)
	w = Warehouse(aberlour, 5.5, 72, 3.0, summer)
	assert.Equal(t, 7.5, w.Temperature)

	w = Warehouse(aberlour, 14, 70, 0, summer)
	assert.True(t, w.Optimal)
	assert.Equal(t, "Excellent", w.Rating)

	w = Warehouse(aberlour, -10, 95, 0, summer)
	assert.Equal(t, "Suboptimal", w.Rating)
}

func TestAgingRate(t *testing.T) {
	assert.InDelta(t, 1.0, AgingRate(13.5, 70), 1e-12)
	assert.InDelta(t, 1.1*1.02, AgingRate(11.5, 80), 1e-12)
}

func TestSeason(t *testing.T) {
	tests := map[time.Month]string{
		time.January: "winter", time.April: "spring", time.July: "summer",
		time.October: "autumn", time.December: "winter",
	}
	for month, want := range tests {
		assert.Equal(t, want, Season(time.Date(2025, month, 1, 0, 0, 0, 0, time.UTC)))
	}
}

func newClimate(t *testing.T, h *harness) *ClimateAdapter {
	t.Helper()
	spec, err := ClimateCorrelations(models.DefaultCorrelationEpsilon)
	require.NoError(t, err)
	a, err := NewClimateAdapter(SourceConfig{BaseURL: h.srv.URL, APIKey: "noaa-token"}, spec, h.deps)
	require.NoError(t, err)
	return a
}

func TestClimateAdapter_Live(t *testing.T) {
	var token, start, end string
	body := `{"results":[
		{"date":"2025-11-08T00:00:00","datatype":"TAVG","station":"GHCND:UKM00003162","value":8.0},
		{"date":"2025-11-08T00:00:00","datatype":"PRCP","station":"GHCND:UKM00003162","value":2.5},
		{"date":"2025-11-09T00:00:00","datatype":"TMAX","station":"GHCND:UKM00003162","value":12.0},
		{"date":"2025-11-09T00:00:00","datatype":"TMIN","station":"GHCND:UKM00003162","value":4.0},
		{"date":"2025-11-09T00:00:00","datatype":"PRCP","station":"GHCND:UKM00003162","value":1.0}
	]}`
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("token")
		start = r.URL.Query().Get("startdate")
		end = r.URL.Query().Get("enddate")
		jsonHandler(http.StatusOK, body)(w, r)
	})
	a := newClimate(t, h)

	result := a.Fetch(context.Background(), Params{"station": "ghcnd:ukm00003162", "days": "3"})
	require.True(t, result.IsLive())
	assert.Equal(t, "noaa-token", token)
	assert.Equal(t, "2025-11-08", start)
	assert.Equal(t, "2025-11-10", end)

	normals := result.Payload.(models.ClimateNormals)
	assert.Equal(t, "GHCND:UKM00003162", normals.Station)
	assert.Equal(t, 2, normals.Observations)
	assert.Equal(t, []float64{8.0, 8.0}, normals.DailyTemperature)
	assert.Equal(t, 8.0, normals.MeanTemperature)
	assert.Equal(t, 3.5, normals.TotalPrecipitation)
	assert.False(t, normals.LowConfidence)
}

func TestClimateAdapter_FallbackSeriesCoversWindow(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusForbidden, `{}`))
	a := newClimate(t, h)

	result := a.Fetch(context.Background(), Params{"station": "GHCND:UKM00003162", "days": "60"})
	require.True(t, result.IsFallback())
	assert.Equal(t, "auth_error", result.Reason)

	normals := result.Payload.(models.ClimateNormals)
	assert.Len(t, normals.DailyTemperature, 60)
	assert.Len(t, normals.DailyPrecipitation, 60)
	assert.Equal(t, 60, normals.Observations)
	for _, p := range normals.DailyPrecipitation {
		assert.GreaterOrEqual(t, p, 0.0)
	}
}

func TestClimateAdapter_NoTemperatureIsInvalidPayload(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `{"results":[{"date":"2025-11-08","datatype":"PRCP","value":1.0}]}`))
	a := newClimate(t, h)

	result := a.Fetch(context.Background(), Params{"station": "GHCND:UKM00003162"})
	require.True(t, result.IsFallback())
	assert.Equal(t, ReasonInvalidPayload, result.Reason)
}

func TestClimateAdapter_InvalidParams(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `{}`))
	a := newClimate(t, h)

	for _, params := range []Params{
		{"station": ""},
		{"station": "no-colon"},
		{"station": "GHCND:X", "days": "0"},
		{"station": "GHCND:X", "days": "367"},
		{"station": "GHCND:X", "days": "ten"},
	} {
		assert.True(t, IsInvalidParams(a.Fetch(context.Background(), params)), "params %v", params)
	}
	assert.Equal(t, 0, h.Calls())
}

func newMarine(t *testing.T, h *harness) *MarineAdapter {
	t.Helper()
	spec, err := MarineCorrelations(models.DefaultCorrelationEpsilon)
	require.NoError(t, err)
	a, err := NewMarineAdapter(SourceConfig{BaseURL: h.srv.URL, APIKey: "gfw"}, spec, h.deps)
	require.NoError(t, err)
	return a
}

func fishingEvent(id, vessel string, lat, lon float64, hours int) string {
	start := fixedNow.Add(-48 * time.Hour)
	end := start.Add(time.Duration(hours) * time.Hour)
	return fmt.Sprintf(`{"id":%q,"type":"fishing","start":%q,"end":%q,"vessel":{"id":%q},"position":{"lat":%v,"lon":%v}}`,
		id, start.Format(time.RFC3339), end.Format(time.RFC3339), vessel, lat, lon)
}

func TestMarineAdapter_Live(t *testing.T) {
	var auth string
	body := `{"entries":[` +
		fishingEvent("e1", "v1", 56.1, -3.0, 4) + "," +
		fishingEvent("e2", "v1", 56.0, -2.9, 6) + "," +
		fishingEvent("e3", "v2", 56.2, -3.5, 10) + "," +
		fishingEvent("far", "v3", 60.0, 2.0, 20) + `]}`
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		jsonHandler(http.StatusOK, body)(w, r)
	})
	a := newMarine(t, h)

	result := a.Fetch(context.Background(), Params{"area": "firth_of_forth", "days": "10"})
	require.True(t, result.IsLive())
	assert.Equal(t, "Bearer gfw", auth)

	activity := result.Payload.(models.MarineActivity)
	assert.Equal(t, 3, activity.Events)
	assert.Equal(t, 2, activity.Vessels)
	assert.Equal(t, 20.0, activity.FishingHours)
	assert.Equal(t, 0.3, activity.EventsPerDay)
	assert.Equal(t, 16.0, activity.PressureIndex)
	assert.Equal(t, "low", activity.PressureLevel)
}

func TestMarineAdapter_AreasDoNotShareCacheEntries(t *testing.T) {
	var boxes []string
	body := `{"entries":[` +
		fishingEvent("forth", "v1", 56.1, -3.0, 4) + "," +
		fishingEvent("moray-a", "v2", 57.8, -3.2, 6) + "," +
		fishingEvent("moray-b", "v3", 58.1, -2.5, 2) + `]}`
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		boxes = append(boxes, q.Get("lat-min")+","+q.Get("lat-max")+","+q.Get("lon-min")+","+q.Get("lon-max"))
		jsonHandler(http.StatusOK, body)(w, r)
	})
	a := newMarine(t, h)

	forth := a.Fetch(context.Background(), Params{"area": "firth_of_forth"})
	require.True(t, forth.IsLive())
	moray := a.Fetch(context.Background(), Params{"area": "moray_firth"})
	require.True(t, moray.IsLive())
	assert.False(t, moray.Cached)

	assert.Equal(t, "firth_of_forth", forth.Payload.(models.MarineActivity).Area)
	assert.Equal(t, 1, forth.Payload.(models.MarineActivity).Events)
	assert.Equal(t, "moray_firth", moray.Payload.(models.MarineActivity).Area)
	assert.Equal(t, 2, moray.Payload.(models.MarineActivity).Events)
	assert.Equal(t, 2, h.Calls())
	assert.Equal(t, []string{"55.9,56.3,-3.8,-2.4", "57.5,58.5,-4.3,-1.8"}, boxes)

	again := a.Fetch(context.Background(), Params{"area": "moray_firth"})
	require.True(t, again.IsLive())
	assert.True(t, again.Cached)
	assert.Equal(t, "moray_firth", again.Payload.(models.MarineActivity).Area)
	assert.Equal(t, 2, h.Calls())
}

func TestMarineAdapter_MalformedJSONFallsBack(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `not json`))
	a := newMarine(t, h)

	result := a.Fetch(context.Background(), Params{"area": "north_sea"})
	require.True(t, result.IsFallback())
	assert.Equal(t, "malformed_payload", result.Reason)
	assert.Equal(t, 1, h.Calls())

	activity := result.Payload.(models.MarineActivity)
	assert.GreaterOrEqual(t, activity.PressureIndex, 0.0)
	assert.LessOrEqual(t, activity.PressureIndex, 100.0)
	assert.NotEmpty(t, activity.PressureLevel)
}

func TestMarineAdapter_InvalidParams(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `{"entries":[]}`))
	a := newMarine(t, h)

	assert.True(t, IsInvalidParams(a.Fetch(context.Background(), Params{"area": "lake"})))
	assert.True(t, IsInvalidParams(a.Fetch(context.Background(), Params{"area": "north_sea", "days": "91"})))
	assert.Equal(t, 0, h.Calls())
}

func TestPressureIndexAndLevel(t *testing.T) {
	assert.Equal(t, 0.0, PressureIndex(0, 0))
	assert.Equal(t, 25.0, PressureIndex(10, 10))
	assert.Equal(t, 100.0, PressureIndex(80, 100))

	tests := []struct {
		perDay float64
		want   string
	}{
		{0, "low"}, {4.9, "low"}, {5, "moderate"}, {14.9, "moderate"},
		{15, "high"}, {29.9, "high"}, {30, "very high"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PressureLevel(tt.perDay), "rate %v", tt.perDay)
	}
}

func newHabitat(t *testing.T, h *harness) *HabitatAdapter {
	t.Helper()
	spec, err := HabitatCorrelations(models.DefaultCorrelationEpsilon)
	require.NoError(t, err)
	a, err := NewHabitatAdapter(SourceConfig{BaseURL: h.srv.URL}, spec, h.deps)
	require.NoError(t, err)
	return a
}

func speciesFeature(id int, scientific, common string) string {
	return fmt.Sprintf(`{"attributes":{"OBJECTID":%d,"SCIENTIFIC":%q,"COMMON_NAME":%q,"STATUS":"PMF"}}`, id, scientific, common)
}

func TestHabitatAdapter_Live(t *testing.T) {
	var path, geometry string
	body := `{"features":[` +
		speciesFeature(1, "Modiolus modiolus", "Horse mussel") + "," +
		speciesFeature(2, "Modiolus modiolus", "Horse mussel") + "," +
		speciesFeature(3, "Dermochelys coriacea", "Leatherback") + "," +
		speciesFeature(4, "Ostrea edulis", "Native oyster") + "," +
		speciesFeature(4, "Ostrea edulis", "Native oyster") + `]}`
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		geometry = r.URL.Query().Get("geometry")
		jsonHandler(http.StatusOK, body)(w, r)
	})
	a := newHabitat(t, h)

	result := a.Fetch(context.Background(), Params{"area": "firth_of_forth"})
	require.True(t, result.IsLive())
	assert.Equal(t, "/1/query", path)
	assert.Equal(t, "-3.8,55.9,-2.4,56.3", geometry)

	health := result.Payload.(models.HabitatHealth)
	assert.Equal(t, "firth_of_forth", health.Area)
	assert.Equal(t, 4, health.Records)
	assert.Equal(t, 3, health.Species)
	assert.Equal(t, 1, health.TurtleRecords)
	assert.Equal(t, []string{"Modiolus modiolus", "Dermochelys coriacea", "Ostrea edulis"}, health.KeySpecies)
	assert.Equal(t, 60.0, health.QualityScore)
	assert.Equal(t, "good", health.Rating)
}

func TestHabitatAdapter_AreasDoNotShareCacheEntries(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `{"features":[`+speciesFeature(1, "Caretta caretta", "")+`]}`))
	a := newHabitat(t, h)

	forth := a.Fetch(context.Background(), Params{"area": "firth_of_forth"})
	west := a.Fetch(context.Background(), Params{"area": "west_coast"})
	require.True(t, forth.IsLive())
	require.True(t, west.IsLive())
	assert.Equal(t, "firth_of_forth", forth.Payload.(models.HabitatHealth).Area)
	assert.Equal(t, "west_coast", west.Payload.(models.HabitatHealth).Area)
	assert.Equal(t, 2, h.Calls())
}

func TestHabitatAdapter_ServiceErrorBodyFallsBack(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `{"error":{"code":400,"message":"Invalid query"}}`))
	a := newHabitat(t, h)

	result := a.Fetch(context.Background(), Params{"area": "north_sea"})
	require.True(t, result.IsFallback())
	assert.Equal(t, ReasonInvalidPayload, result.Reason)

	health := result.Payload.(models.HabitatHealth)
	assert.Equal(t, "north_sea", health.Area)
	assert.GreaterOrEqual(t, health.QualityScore, 0.0)
	assert.LessOrEqual(t, health.QualityScore, 100.0)
	assert.Equal(t, HabitatRating(health.QualityScore), health.Rating)
}

func TestHabitatAdapter_InvalidParams(t *testing.T) {
	h := newHarness(t, jsonHandler(http.StatusOK, `{"features":[]}`))
	a := newHabitat(t, h)

	assert.True(t, IsInvalidParams(a.Fetch(context.Background(), Params{"area": "atlantis"})))
	assert.Equal(t, 0, h.Calls())
}

func TestHabitatQualityAndRating(t *testing.T) {
	assert.Equal(t, 50.0, HabitatQuality(0, 0))
	assert.Equal(t, 60.0, HabitatQuality(51, 0))
	assert.Equal(t, 90.0, HabitatQuality(101, 6))
	assert.Equal(t, "excellent", HabitatRating(90))
	assert.Equal(t, "good", HabitatRating(60))
	assert.Equal(t, "fair", HabitatRating(40))
	assert.Equal(t, "poor", HabitatRating(39.9))
	assert.True(t, isTurtle("", "Loggerhead turtle"))
	assert.False(t, isTurtle("Zostera marina", "Seagrass"))
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&upstream.RequestError{Kind: upstream.KindAuth}, "auth_error"},
		{fmt.Errorf("wrapped: %w", &upstream.RequestError{Kind: upstream.KindTimeout}), "timeout"},
		{&PayloadError{Source: "weather", Err: errors.New("bad")}, ReasonInvalidPayload},
		{context.Canceled, ReasonCanceled},
		{context.DeadlineExceeded, ReasonCanceled},
		{errors.New("boom"), ReasonUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ReasonFor(tt.err))
	}
}

func TestNewAdapterRequiresDependencies(t *testing.T) {
	spec, err := WeatherCorrelations(0.05)
	require.NoError(t, err)
	_, err = NewWeatherAdapter(SourceConfig{}, spec, Dependencies{})
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	assert.Len(t, Regions(), 5)
	assert.Equal(t, "aberlour", Regions()[0].Key)
	_, ok := LookupRegion(" ISLAY ")
	assert.True(t, ok)

	area, ok := LookupSeaArea("moray_firth")
	require.True(t, ok)
	assert.True(t, area.Contains(58.0, -3.0))
	assert.False(t, area.Contains(56.0, -3.0))
	assert.Len(t, SeaAreas(), 4)
}
