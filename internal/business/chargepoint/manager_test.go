package chargepoint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/chargeamps-bridge/internal/api"
	"github.com/charging-platform/chargeamps-bridge/internal/cache"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/device"
	"github.com/charging-platform/chargeamps-bridge/internal/domain/events"
	"github.com/charging-platform/chargeamps-bridge/internal/logger"
)

// fakeAPI 内存实现的远端 API，写操作会反映到后续读取
type fakeAPI struct {
	mu                sync.Mutex
	chargePoints      []device.ChargePoint
	status            map[string]device.ChargePointStatus
	statusErr         error
	listErr           error
	settings          map[string]device.ChargePointSettings
	connectorSettings map[device.ConnectorKey]device.ConnectorSettings
	sessions          map[string][]device.ChargingSession
	calls             map[string]int
	delay             time.Duration
	inFlight          map[string]int
	maxInFlight       int
}

func newFakeAPI(ids ...string) *fakeAPI {
	f := &fakeAPI{
		status:            make(map[string]device.ChargePointStatus),
		settings:          make(map[string]device.ChargePointSettings),
		connectorSettings: make(map[device.ConnectorKey]device.ConnectorSettings),
		sessions:          make(map[string][]device.ChargingSession),
		calls:             make(map[string]int),
		inFlight:          make(map[string]int),
	}
	for _, id := range ids {
		f.chargePoints = append(f.chargePoints, device.ChargePoint{
			ID:   id,
			Name: "Charger " + id,
			Type: "HALO",
			Connectors: []device.Connector{
				{ChargePointID: id, ConnectorID: 1, Type: device.ConnectorTypeCharger},
			},
		})
		f.status[id] = device.ChargePointStatus{
			ID:     id,
			Status: device.ChargePointOnline,
			ConnectorStatuses: []device.ConnectorStatus{
				{ChargePointID: id, ConnectorID: 1, Status: "Available"},
			},
		}
		f.settings[id] = device.ChargePointSettings{ID: id, Dimmer: device.DimmerOff}
		f.connectorSettings[device.ConnectorKey{ChargePointID: id, ConnectorID: 1}] = device.ConnectorSettings{
			ChargePointID: id, ConnectorID: 1, Mode: device.ConnectorModeOff,
		}
	}
	return f
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) writes() int {
	return f.count("SetChargePointSettings") + f.count("SetConnectorSettings") +
		f.count("RemoteStart") + f.count("RemoteStop") + f.count("Reboot")
}

func (f *fakeAPI) GetChargePoints(ctx context.Context) ([]device.ChargePoint, error) {
	f.record("GetChargePoints")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]device.ChargePoint(nil), f.chargePoints...), nil
}

func (f *fakeAPI) GetChargePointStatus(ctx context.Context, id string) (*device.ChargePointStatus, error) {
	f.record("GetChargePointStatus")
	f.mu.Lock()
	f.inFlight[id]++
	if f.inFlight[id] > f.maxInFlight {
		f.maxInFlight = f.inFlight[id]
	}
	delay, statusErr := f.delay, f.statusErr
	f.mu.Unlock()

	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight[id]--
	if statusErr != nil {
		return nil, statusErr
	}
	s, ok := f.status[id]
	if !ok {
		return nil, &api.APIError{Method: "GET", Path: "/status", StatusCode: 404}
	}
	return &s, nil
}

func (f *fakeAPI) GetChargePointSettings(ctx context.Context, id string) (*device.ChargePointSettings, error) {
	f.record("GetChargePointSettings")
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.settings[id]
	return &s, nil
}

func (f *fakeAPI) SetChargePointSettings(ctx context.Context, settings device.ChargePointSettings) error {
	f.record("SetChargePointSettings")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[settings.ID] = settings
	return nil
}

func (f *fakeAPI) GetConnectorSettings(ctx context.Context, id string, connectorID int) (*device.ConnectorSettings, error) {
	f.record("GetConnectorSettings")
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.connectorSettings[device.ConnectorKey{ChargePointID: id, ConnectorID: connectorID}]
	return &s, nil
}

func (f *fakeAPI) SetConnectorSettings(ctx context.Context, settings device.ConnectorSettings) error {
	f.record("SetConnectorSettings")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectorSettings[settings.Key()] = settings
	return nil
}

func (f *fakeAPI) GetChargingSessions(ctx context.Context, id string, start, end *time.Time) ([]device.ChargingSession, error) {
	f.record("GetChargingSessions")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id], nil
}

func (f *fakeAPI) GetChargingSession(ctx context.Context, id string, sessionID int64) (*device.ChargingSession, error) {
	f.record("GetChargingSession")
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions[id] {
		if s.ID == sessionID {
			return &s, nil
		}
	}
	return nil, &api.APIError{Method: "GET", Path: "/chargingsessions", StatusCode: 404}
}

func (f *fakeAPI) RemoteStart(ctx context.Context, id string, connectorID int, auth device.StartAuth) error {
	f.record("RemoteStart")
	return nil
}

func (f *fakeAPI) RemoteStop(ctx context.Context, id string, connectorID int) error {
	f.record("RemoteStop")
	return nil
}

func (f *fakeAPI) Reboot(ctx context.Context, id string) error {
	f.record("Reboot")
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingProducer struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingProducer) PublishEvent(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingProducer) types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.GetType())
	}
	return out
}

type recordingSnapshots struct {
	mu      sync.Mutex
	saved   map[string]cache.Snapshot
	deleted []string
	ttl     time.Duration
}

func (s *recordingSnapshots) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *recordingSnapshots) SaveSnapshot(ctx context.Context, id string, snap cache.Snapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string]cache.Snapshot)
	}
	s.saved[id] = snap
	s.ttl = ttl
	return nil
}

func newTestManager(t *testing.T, fake *fakeAPI, cfg *Config, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	if cfg == nil {
		cfg = DefaultConfig()
	}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(fake, cache.NewStateCache(), cfg, logger.NewNop(), opts...), clock
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.ScanInterval)
	assert.Equal(t, 1, cfg.DefaultConnectorID)
	assert.False(t, cfg.ReadOnly)
	assert.Equal(t, "chargeamps-bridge", cfg.EventSource)
}

func TestManager_RefreshInfoFiltersConfiguredIDs(t *testing.T) {
	fake := newFakeAPI("CP1", "CP2", "CP3")
	cfg := DefaultConfig()
	cfg.ChargePointIDs = []string{"CP1", "CP3"}
	m, _ := newTestManager(t, fake, cfg)

	require.NoError(t, m.RefreshInfo(context.Background()))

	_, ok := m.GetInfo("CP2")
	assert.False(t, ok)
	ids := make([]string, 0)
	for _, cp := range m.GetChargePoints() {
		ids = append(ids, cp.ID)
	}
	assert.Equal(t, []string{"CP1", "CP3"}, ids)
}

func TestManager_RefreshDataThrottled(t *testing.T) {
	fake := newFakeAPI("CP1")
	m, clock := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	m.RefreshData(ctx, "CP1", false)
	assert.Equal(t, 1, fake.count("GetChargePointStatus"))

	// 间隔内的第二次调用不发起任何请求
	fake.mu.Lock()
	fake.status["CP1"] = device.ChargePointStatus{ID: "CP1", Status: "Offline"}
	fake.mu.Unlock()
	clock.Advance(10 * time.Second)
	m.RefreshData(ctx, "CP1", false)
	assert.Equal(t, 1, fake.count("GetChargePointStatus"))
	assert.Equal(t, 1, fake.count("GetChargingSessions"))
	status, ok := m.GetStatus("CP1")
	require.True(t, ok)
	assert.Equal(t, device.ChargePointOnline, status.Status)

	clock.Advance(25 * time.Second)
	m.RefreshData(ctx, "CP1", false)
	assert.Equal(t, 2, fake.count("GetChargePointStatus"))
	status, _ = m.GetStatus("CP1")
	assert.Equal(t, "Offline", status.Status)
}

func TestManager_RefreshDataForce(t *testing.T) {
	fake := newFakeAPI("CP1")
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	m.RefreshData(ctx, "CP1", true)
	m.RefreshData(ctx, "CP1", true)
	assert.Equal(t, 2, fake.count("GetChargePointStatus"))
	assert.Equal(t, 2, fake.count("GetConnectorSettings"))
	assert.Equal(t, 2, fake.count("GetChargePointSettings"))
}

func TestManager_RefreshDataPopulatesCache(t *testing.T) {
	fake := newFakeAPI("CP1")
	fake.sessions["CP1"] = []device.ChargingSession{
		{ID: 1, ChargePointID: "CP1", TotalConsumptionKwh: 1.005},
		{ID: 2, ChargePointID: "CP1", TotalConsumptionKwh: 2.004},
	}
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	m.RefreshData(ctx, "CP1", true)

	total, ok := m.GetTotalEnergy("CP1")
	require.True(t, ok)
	assert.Equal(t, 3.01, total)

	settings, ok := m.GetConnectorSettings("CP1", 1)
	require.True(t, ok)
	assert.Equal(t, device.ConnectorModeOff, settings.Mode)

	cs, ok := m.GetConnectorStatus("CP1", 1)
	require.True(t, ok)
	assert.Equal(t, "Available", cs.Status)

	_, ok = m.GetSettings("CP1")
	assert.True(t, ok)

	measurements, ok := m.GetMeasurements("CP1", 1)
	assert.True(t, ok)
	assert.Empty(t, measurements)

	_, ok = m.GetMeasurements("CP1", 2)
	assert.False(t, ok)
}

func TestManager_RefreshFailureKeepsStaleData(t *testing.T) {
	fake := newFakeAPI("CP1")
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))
	m.RefreshData(ctx, "CP1", true)

	fake.mu.Lock()
	fake.statusErr = &api.TransportError{Method: "GET", Path: "/status", Cause: errors.New("connection reset")}
	fake.mu.Unlock()

	assert.NotPanics(t, func() { m.RefreshData(ctx, "CP1", true) })
	status, ok := m.GetStatus("CP1")
	require.True(t, ok)
	assert.Equal(t, device.ChargePointOnline, status.Status)
}

func TestManager_RefreshUnknownChargePointFailsSoft(t *testing.T) {
	fake := newFakeAPI("CP1")
	m, _ := newTestManager(t, fake, nil)

	// 信息缓存为空时状态不会写入
	m.RefreshData(context.Background(), "CP1", true)
	_, ok := m.GetStatus("CP1")
	assert.False(t, ok)
}

func TestManager_SetConnectorModeForcesOneRefresh(t *testing.T) {
	fake := newFakeAPI("CP1")
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))
	m.RefreshData(ctx, "CP1", true)
	before := fake.count("GetChargePointStatus")

	require.NoError(t, m.SetConnectorMode(ctx, "CP1", 1, device.ConnectorModeOn))

	assert.Equal(t, 1, fake.count("SetConnectorSettings"))
	assert.Equal(t, before+1, fake.count("GetChargePointStatus"))
	settings, ok := m.GetConnectorSettings("CP1", 1)
	require.True(t, ok)
	assert.Equal(t, device.ConnectorModeOn, settings.Mode)
}

func TestManager_WriteCommands(t *testing.T) {
	fake := newFakeAPI("CP1")
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	require.NoError(t, m.SetMaxCurrent(ctx, "CP1", 1, 16))
	settings, _ := m.GetConnectorSettings("CP1", 1)
	require.NotNil(t, settings.MaxCurrent)
	assert.Equal(t, 16.0, *settings.MaxCurrent)

	require.NoError(t, m.SetCableLock(ctx, "CP1", 1, true))
	settings, _ = m.GetConnectorSettings("CP1", 1)
	assert.True(t, settings.CableLock)
	assert.Equal(t, 16.0, *settings.MaxCurrent)

	dimmer := device.DimmerMedium
	on := true
	require.NoError(t, m.SetLights(ctx, "CP1", &dimmer, &on))
	light, ok := m.LightView("CP1")
	require.True(t, ok)
	assert.Equal(t, 170, light.Brightness)
	assert.True(t, light.DownlightOn)

	require.NoError(t, m.SetLights(ctx, "CP1", nil, nil))
	light, _ = m.LightView("CP1")
	assert.Equal(t, device.DimmerMedium, light.Dimmer)

	assert.Error(t, m.SetMaxCurrent(ctx, "CP1", 1, -1))

	require.NoError(t, m.RemoteStart(ctx, "CP1", 1, device.StartAuth{RfidLength: 4, RfidFormat: "Dec", Rfid: "1234"}))
	require.NoError(t, m.RemoteStop(ctx, "CP1", 1))
	require.NoError(t, m.Reboot(ctx, "CP1"))
	assert.Equal(t, 1, fake.count("RemoteStart"))
	assert.Equal(t, 1, fake.count("RemoteStop"))
	assert.Equal(t, 1, fake.count("Reboot"))
}

func TestManager_ReadOnlySuppressesWrites(t *testing.T) {
	fake := newFakeAPI("CP1")
	cfg := DefaultConfig()
	cfg.ReadOnly = true
	m, _ := newTestManager(t, fake, cfg)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	dimmer := device.DimmerHigh
	require.NoError(t, m.SetLights(ctx, "CP1", &dimmer, nil))
	require.NoError(t, m.SetConnectorMode(ctx, "CP1", 1, device.ConnectorModeOn))
	require.NoError(t, m.SetMaxCurrent(ctx, "CP1", 1, 10))
	require.NoError(t, m.SetCableLock(ctx, "CP1", 1, true))
	require.NoError(t, m.RemoteStart(ctx, "CP1", 1, device.StartAuth{Rfid: "1"}))
	require.NoError(t, m.RemoteStop(ctx, "CP1", 1))
	require.NoError(t, m.Reboot(ctx, "CP1"))

	assert.Zero(t, fake.writes())
	// 每条指令之后仍然强制刷新
	assert.Equal(t, 7, fake.count("GetChargePointStatus"))
	settings, _ := m.GetConnectorSettings("CP1", 1)
	assert.Equal(t, device.ConnectorModeOff, settings.Mode)
}

func TestManager_Discover(t *testing.T) {
	t.Run("adopts all owned chargepoints", func(t *testing.T) {
		fake := newFakeAPI("CP1", "CP2")
		m, _ := newTestManager(t, fake, nil)
		require.NoError(t, m.Discover(context.Background()))
		assert.Equal(t, []string{"CP1", "CP2"}, m.ChargePointIDs())
		id, ok := m.DefaultChargePointID()
		assert.True(t, ok)
		assert.Equal(t, "CP1", id)
		_, ok = m.GetStatus("CP2")
		assert.True(t, ok)
	})

	t.Run("keeps configured ids whose status request fails", func(t *testing.T) {
		fake := newFakeAPI("CP1")
		cfg := DefaultConfig()
		cfg.ChargePointIDs = []string{"CP1", "MISSING"}
		m, _ := newTestManager(t, fake, cfg)
		require.NoError(t, m.Discover(context.Background()))
		assert.Equal(t, []string{"CP1", "MISSING"}, m.ChargePointIDs())
		_, ok := m.GetInfo("MISSING")
		assert.False(t, ok)
	})

	t.Run("listing failure keeps configured ids", func(t *testing.T) {
		fake := newFakeAPI("CP1")
		fake.listErr = &api.APIError{Method: "GET", Path: "/chargepoints/owned", StatusCode: 503}
		cfg := DefaultConfig()
		cfg.ChargePointIDs = []string{"CP1"}
		m, _ := newTestManager(t, fake, cfg)
		require.NoError(t, m.Discover(context.Background()))
		assert.Equal(t, []string{"CP1"}, m.ChargePointIDs())
		_, ok := m.GetInfo("CP1")
		assert.False(t, ok)
		// 状态仍然完成首次同步
		_, ok = m.GetStatus("CP1")
		assert.True(t, ok)
	})

	t.Run("listing failure without configured ids defers to polling", func(t *testing.T) {
		fake := newFakeAPI("CP1")
		fake.listErr = &api.TransportError{Method: "GET", Path: "/chargepoints/owned", Cause: errors.New("connection reset")}
		m, _ := newTestManager(t, fake, nil)
		require.NoError(t, m.Discover(context.Background()))
		assert.Empty(t, m.ChargePointIDs())

		fake.mu.Lock()
		fake.listErr = nil
		fake.mu.Unlock()
		m.Poll(context.Background())
		assert.Equal(t, []string{"CP1"}, m.ChargePointIDs())
		_, ok := m.GetStatus("CP1")
		assert.True(t, ok)
	})

	t.Run("no chargepoints aborts", func(t *testing.T) {
		m, _ := newTestManager(t, newFakeAPI(), nil)
		assert.ErrorIs(t, m.Discover(context.Background()), ErrNoChargePoints)
		_, ok := m.DefaultChargePointID()
		assert.False(t, ok)
	})

	t.Run("auth error aborts", func(t *testing.T) {
		fake := newFakeAPI("CP1")
		fake.statusErr = &api.AuthError{Op: "login", Cause: errors.New("bad credentials")}
		cfg := DefaultConfig()
		cfg.ChargePointIDs = []string{"CP1"}
		m, _ := newTestManager(t, fake, cfg)
		err := m.Discover(context.Background())
		assert.True(t, api.IsAuthError(err))
	})
}

func TestManager_EventsAndSnapshots(t *testing.T) {
	fake := newFakeAPI("CP1")
	fake.sessions["CP1"] = []device.ChargingSession{{ID: 1, TotalConsumptionKwh: 1.5}}
	producer := &recordingProducer{}
	snapshots := &recordingSnapshots{}
	m, _ := newTestManager(t, fake, nil, WithEventProducer(producer), WithSnapshotStore(snapshots))
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	m.RefreshData(ctx, "CP1", true)
	assert.ElementsMatch(t, []events.EventType{
		events.EventTypeChargePointStatusChanged,
		events.EventTypeConnectorStatusChanged,
		events.EventTypeEnergyUpdated,
	}, producer.types())

	snapshots.mu.Lock()
	snap, ok := snapshots.saved["CP1"]
	ttl := snapshots.ttl
	snapshots.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 90*time.Second, ttl)
	require.NotNil(t, snap.TotalEnergy)
	assert.Equal(t, 1.5, *snap.TotalEnergy)

	// 无变化时不再发布状态事件
	m.RefreshData(ctx, "CP1", true)
	assert.Len(t, producer.types(), 3)

	require.NoError(t, m.SetConnectorMode(ctx, "CP1", 1, device.ConnectorModeOn))
	assert.Contains(t, producer.types(), events.EventTypeConnectorSettingsChanged)
}

func TestManager_ConnectorView(t *testing.T) {
	fake := newFakeAPI("CP1")
	fake.status["CP1"] = device.ChargePointStatus{
		ID:     "CP1",
		Status: device.ChargePointOnline,
		ConnectorStatuses: []device.ConnectorStatus{{
			ChargePointID:       "CP1",
			ConnectorID:         1,
			Status:              "Charging",
			TotalConsumptionKwh: 1.23456,
			Measurements: []device.Measurement{
				{Phase: "L1", Current: 10, Voltage: 230},
				{Phase: "L2", Current: 0, Voltage: 230},
			},
		}},
	}
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))
	m.RefreshData(ctx, "CP1", true)

	view, ok := m.ConnectorView("CP1", 1)
	require.True(t, ok)
	assert.Equal(t, "Charging", view.State)
	assert.Equal(t, 2300.0, view.Power.TotalPower)
	assert.Equal(t, "L1", view.Power.ActivePhase)
	assert.Equal(t, 1.235, view.TotalConsumptionKwh)
	assert.Equal(t, "mdi:ev-plug-type2", view.Icon)
	require.NotNil(t, view.Enabled)
	assert.False(t, *view.Enabled)

	_, ok = m.ConnectorView("CP1", 9)
	assert.False(t, ok)
	_, ok = m.ConnectorView("CP9", 1)
	assert.False(t, ok)
}

func TestManager_SerializesRefreshesPerChargePoint(t *testing.T) {
	fake := newFakeAPI("CP1", "CP2")
	fake.delay = 20 * time.Millisecond
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.RefreshInfo(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		for _, id := range []string{"CP1", "CP2"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				m.RefreshData(ctx, id, true)
			}(id)
		}
	}
	wg.Wait()

	assert.Equal(t, 8, fake.count("GetChargePointStatus"))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.maxInFlight)
}

func TestManager_Poll(t *testing.T) {
	fake := newFakeAPI("CP1", "CP2")
	m, clock := newTestManager(t, fake, nil)
	ctx := context.Background()
	require.NoError(t, m.Discover(ctx))
	infoCalls := fake.count("GetChargePoints")
	statusCalls := fake.count("GetChargePointStatus")

	// 刚发现后立即轮询全部被节流
	m.Poll(ctx)
	assert.Equal(t, infoCalls, fake.count("GetChargePoints"))
	assert.Equal(t, statusCalls, fake.count("GetChargePointStatus"))

	// 略早于扫描间隔的一轮仍然执行
	clock.Advance(29 * time.Second)
	m.Poll(ctx)
	assert.Equal(t, infoCalls+1, fake.count("GetChargePoints"))
	assert.Equal(t, statusCalls+2, fake.count("GetChargePointStatus"))
}

func TestManager_RunStopsOnCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScanInterval = 10 * time.Millisecond
	m, _ := newTestManager(t, newFakeAPI("CP1"), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}
}

func TestManager_ChargingSessions(t *testing.T) {
	fake := newFakeAPI("CP1")
	fake.sessions["CP1"] = []device.ChargingSession{{ID: 42, ChargePointID: "CP1", TotalConsumptionKwh: 7}}
	m, _ := newTestManager(t, fake, nil)
	ctx := context.Background()

	sessions, err := m.GetChargingSessions(ctx, "CP1", nil, nil)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)

	session, err := m.GetChargingSession(ctx, "CP1", 42)
	require.NoError(t, err)
	assert.Equal(t, 7.0, session.TotalConsumptionKwh)

	_, err = m.GetChargingSession(ctx, "CP1", 1)
	assert.True(t, api.IsRecoverable(err))
}

func TestManager_RefreshInfoDropsUnlistedChargePoints(t *testing.T) {
	fake := newFakeAPI("CP1", "CP2")
	snapshots := &recordingSnapshots{}
	m, _ := newTestManager(t, fake, nil, WithSnapshotStore(snapshots))
	ctx := context.Background()
	require.NoError(t, m.Discover(ctx))

	snapshots.mu.Lock()
	_, ok := snapshots.saved["CP2"]
	snapshots.mu.Unlock()
	require.True(t, ok)

	fake.mu.Lock()
	fake.chargePoints = fake.chargePoints[:1]
	fake.mu.Unlock()
	require.NoError(t, m.RefreshInfo(ctx))

	_, ok = m.GetInfo("CP2")
	assert.False(t, ok)
	snapshots.mu.Lock()
	defer snapshots.mu.Unlock()
	assert.Equal(t, []string{"CP2"}, snapshots.deleted)
	_, ok = snapshots.saved["CP2"]
	assert.False(t, ok)
	_, ok = snapshots.saved["CP1"]
	assert.True(t, ok)
}
