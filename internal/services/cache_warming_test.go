package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/tides-tomes-go/internal/adapters"
	"github.com/irfndi/tides-tomes-go/internal/models"
)

func TestDefaultWarmTargets(t *testing.T) {
	weather := NewMockServiceAdapter("weather")
	marine := NewMockServiceAdapter("marine")

	targets := DefaultWarmTargets(weather, marine)
	assert.Len(t, targets, len(adapters.Regions())+len(adapters.SeaAreas()))
	assert.Equal(t, adapters.Params{"region": "aberlour"}, targets[0].Params)
	assert.Same(t, marine, targets[len(targets)-1].Adapter)

	habitat := NewMockServiceAdapter("habitat")
	targets = DefaultWarmTargets(weather, marine, habitat)
	assert.Len(t, targets, len(adapters.Regions())+2*len(adapters.SeaAreas()))
	assert.Same(t, habitat, targets[len(targets)-1].Adapter)
	assert.Equal(t, adapters.Params{"area": adapters.SeaAreas()[0].Key}, targets[len(adapters.Regions())+len(adapters.SeaAreas())].Params)
}

func TestCacheWarmingService_WarmCache(t *testing.T) {
	weather := NewMockServiceAdapter("weather")
	weather.On("Fetch", mock.Anything, adapters.Params{"region": "edinburgh"}).
		Return(models.Live(models.WeatherObservation{Region: "edinburgh"}))
	weather.On("Fetch", mock.Anything, adapters.Params{"region": "islay"}).
		Return(models.Fallback(models.WeatherObservation{Region: "islay"}, "timeout"))
	marine := NewMockServiceAdapter("marine")
	marine.On("Fetch", mock.Anything, adapters.Params{"area": "north_sea"}).
		Return(models.Failed(errors.New("synthesizer misconfigured")))

	svc := NewCacheWarmingService([]WarmTarget{
		{Adapter: weather, Params: adapters.Params{"region": "edinburgh"}},
		{Adapter: weather, Params: adapters.Params{"region": "islay"}},
		{Adapter: marine, Params: adapters.Params{"area": "north_sea"}},
	}, 2, nil)

	report, err := svc.WarmCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Targets)
	assert.Equal(t, 1, report.Live)
	assert.Equal(t, 1, report.Fallback)
	assert.Equal(t, 1, report.Failed)
	weather.AssertExpectations(t)
	marine.AssertExpectations(t)
}

func TestCacheWarmingService_ReportsCancellation(t *testing.T) {
	weather := NewMockServiceAdapter("weather")
	weather.On("Fetch", mock.Anything, mock.Anything).
		Return(models.Fallback(models.WeatherObservation{}, "canceled"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewCacheWarmingService([]WarmTarget{{Adapter: weather, Params: adapters.Params{"region": "glasgow"}}}, 0, nil)
	_, err := svc.WarmCache(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
