package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPowerView(t *testing.T) {
	view := NewPowerView([]Measurement{
		{Phase: "L1", Current: 10.04, Voltage: 230},
		{Phase: "L2", Current: 0, Voltage: 231},
	})

	assert.Equal(t, 2309.0, view.TotalPower)
	assert.Equal(t, "L1", view.ActivePhase)
	assert.Equal(t, 2309.0, view.PhaseValues["l1_power"])
	assert.Equal(t, 10.0, view.PhaseValues["l1_current"])
	assert.Equal(t, 0.0, view.PhaseValues["l2_power"])
}

func TestNewPowerView_NoMeasurements(t *testing.T) {
	view := NewPowerView(nil)

	assert.Equal(t, 0.0, view.TotalPower)
	assert.Equal(t, "", view.ActivePhase)
	assert.Len(t, view.PhaseValues, 6)
	assert.Contains(t, view.PhaseValues, "l3_current")
}

func TestNewConnectorView(t *testing.T) {
	key := ConnectorKey{ChargePointID: "cp1", ConnectorID: 2}
	info := &ChargePoint{
		ID:   "cp1",
		Type: "HALO",
		Connectors: []Connector{
			{ChargePointID: "cp1", ConnectorID: 1, Type: ConnectorTypeCharger},
			{ChargePointID: "cp1", ConnectorID: 2, Type: ConnectorTypeSchuko},
		},
	}
	maxCurrent := 15.6
	settings := &ConnectorSettings{ChargePointID: "cp1", ConnectorID: 2, Mode: ConnectorModeOn, CableLock: true, MaxCurrent: &maxCurrent}
	status := &ConnectorStatus{ChargePointID: "cp1", ConnectorID: 2, Status: "Charging", TotalConsumptionKwh: 1.23456}

	t.Run("online", func(t *testing.T) {
		view := NewConnectorView(key, info, &ChargePointStatus{ID: "cp1", Status: ChargePointOnline}, status, settings)

		assert.Equal(t, "Charging", view.State)
		assert.Equal(t, ConnectorTypeSchuko, view.ConnectorType)
		assert.Equal(t, "mdi:power-socket-de", view.Icon)
		assert.Equal(t, 1.235, view.TotalConsumptionKwh)
		require.NotNil(t, view.Enabled)
		assert.True(t, *view.Enabled)
		require.NotNil(t, view.MaxCurrent)
		assert.Equal(t, 16.0, *view.MaxCurrent)
	})

	t.Run("offline chargepoint", func(t *testing.T) {
		view := NewConnectorView(key, info, &ChargePointStatus{ID: "cp1", Status: "Offline"}, status, settings)
		assert.Equal(t, StateUnavailable, view.State)
	})

	t.Run("unknown mode", func(t *testing.T) {
		view := NewConnectorView(key, nil, nil, nil, &ConnectorSettings{Mode: ConnectorModeDefault})
		assert.Nil(t, view.Enabled)
		assert.Equal(t, DefaultIcon, view.Icon)
		assert.Empty(t, view.State)
	})
}

func TestNewLightView(t *testing.T) {
	view := NewLightView(ChargePointSettings{ID: "cp1", Dimmer: DimmerMedium, DownLight: false})
	assert.True(t, view.DimmerOn)
	assert.Equal(t, 170, view.Brightness)
	assert.False(t, view.DownlightOn)

	off := NewLightView(ChargePointSettings{ID: "cp1", Dimmer: DimmerOff})
	assert.False(t, off.DimmerOn)
	assert.Equal(t, 0, off.Brightness)
}

func TestDimmerForBrightness(t *testing.T) {
	assert.Equal(t, "low", DimmerForBrightness(10))
	assert.Equal(t, "medium", DimmerForBrightness(150))
	assert.Equal(t, "high", DimmerForBrightness(200))
	assert.Equal(t, "high", DimmerForBrightness(0))
}
