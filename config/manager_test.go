package config_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/confstream/config"
	pkgerrors "github.com/c360/confstream/errors"
	"github.com/c360/confstream/eventbus"
	"github.com/c360/confstream/metric"
	"github.com/c360/confstream/storage/memstore"
	"github.com/c360/confstream/types"
	"github.com/c360/confstream/validate"
)

func newManager(t *testing.T, opts ...config.Option) *config.Manager {
	t.Helper()
	m, err := config.NewManager(memstore.New(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func update(t *testing.T, m *config.Manager, name string, data map[string]any) *types.ConfigSpec {
	t.Helper()
	spec, err := m.UpdateConfig(context.Background(), &types.ConfigSpec{Name: name, Data: data})
	require.NoError(t, err)
	return spec
}

func drainOne(t *testing.T, sub *eventbus.Subscription) types.ConfigChange {
	t.Helper()
	select {
	case c := <-sub.C:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change event")
		return types.ConfigChange{}
	}
}

func TestUpdateThenGetRoundTrip(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	v1 := update(t, m, "server", map[string]any{"port": float64(8080)})
	assert.Equal(t, int64(1), v1.Version)

	got, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, float64(8080), got.Data["port"])
	assert.NotEmpty(t, got.Checksum)
	assert.False(t, got.Timestamp.IsZero())

	v2 := update(t, m, "server", map[string]any{"port": float64(9090)})
	assert.Equal(t, int64(2), v2.Version)

	v3 := update(t, m, "server", map[string]any{"port": float64(9091)})
	assert.Equal(t, int64(3), v3.Version)
}

func TestGetConfigUnknownName(t *testing.T) {
	m := newManager(t)

	_, err := m.GetConfig(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrNotFound))
}

func TestIdempotentUpdate(t *testing.T) {
	m := newManager(t)

	sub, err := m.TrackChanges()
	require.NoError(t, err)

	first := update(t, m, "server", map[string]any{"port": float64(8080)})
	assert.Equal(t, int64(1), first.Version)
	drainOne(t, sub)

	// Same payload again: same version back, no second event.
	second := update(t, m, "server", map[string]any{"port": float64(8080)})
	assert.Equal(t, int64(1), second.Version)
	assert.Equal(t, first.Checksum, second.Checksum)

	select {
	case c := <-sub.C:
		t.Fatalf("unexpected event for no-op update: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}

	versions, err := m.Versions(context.Background(), "server")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, versions)
}

func TestValidationFailureLeavesStateUntouched(t *testing.T) {
	rules := validate.NewRuleSet().Add("port", validate.Range(1024, 65535))
	m := newManager(t, config.WithRules(rules))
	ctx := context.Background()

	_, err := m.UpdateConfig(ctx, &types.ConfigSpec{
		Name: "server",
		Data: map[string]any{"port": float64(70000)},
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrValidationFailed))

	var failed *validate.FailedError
	require.True(t, stderrors.As(err, &failed))
	require.Len(t, failed.Errors, 1)
	assert.Equal(t, "port", failed.Errors[0].Path)
	assert.Equal(t, "Value must be between 1024 and 65535", failed.Errors[0].Message)

	// Nothing was stored.
	_, err = m.GetConfig(ctx, "server")
	assert.True(t, stderrors.Is(err, pkgerrors.ErrNotFound))
}

func TestValidationReportsAllErrors(t *testing.T) {
	rules := validate.NewRuleSet().
		Add("port", validate.Type(validate.KindInt), validate.Range(1024, 65535)).
		Add("host", validate.Type(validate.KindString))
	m := newManager(t, config.WithRules(rules))

	_, err := m.UpdateConfig(context.Background(), &types.ConfigSpec{
		Name: "server",
		Data: map[string]any{"port": "not-a-port", "host": float64(1)},
	})
	require.Error(t, err)

	var failed *validate.FailedError
	require.True(t, stderrors.As(err, &failed))
	// host type error, port type error, port range-as-type error.
	assert.Len(t, failed.Errors, 3)
}

func TestValidationRejectionPreservesPreviousVersion(t *testing.T) {
	rules := validate.NewRuleSet().Add("port", validate.Range(1024, 65535))
	m := newManager(t, config.WithRules(rules))
	ctx := context.Background()

	update(t, m, "server", map[string]any{"port": float64(8080)})

	_, err := m.UpdateConfig(ctx, &types.ConfigSpec{
		Name: "server",
		Data: map[string]any{"port": float64(70000)},
	})
	require.Error(t, err)

	got, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, float64(8080), got.Data["port"])
}

func TestValidationTimeout(t *testing.T) {
	slow := validate.Custom(func(*validate.Context) bool {
		time.Sleep(300 * time.Millisecond)
		return true
	}, "never fails")
	rules := validate.NewRuleSet().Add("port", slow)

	m := newManager(t,
		config.WithRules(rules),
		config.WithValidationTimeout(50*time.Millisecond))

	_, err := m.UpdateConfig(context.Background(), &types.ConfigSpec{
		Name: "server",
		Data: map[string]any{"port": float64(8080)},
	})
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrTimeout))
}

func TestRollbackAfterThreeUpdates(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	update(t, m, "server", map[string]any{"port": float64(1111)})
	update(t, m, "server", map[string]any{"port": float64(2222)})
	update(t, m, "server", map[string]any{"port": float64(3333)})

	restored, err := m.RollbackConfig(ctx, "server", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), restored.Version, "rollback mints a new version")
	assert.Equal(t, float64(1111), restored.Data["port"], "v4 carries v1's payload")

	// All historical versions remain retrievable and unchanged.
	for version, port := range map[int64]float64{1: 1111, 2: 2222, 3: 3333} {
		spec, err := m.GetVersion(ctx, "server", version)
		require.NoError(t, err)
		assert.Equal(t, port, spec.Data["port"])
	}

	latest, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, int64(4), latest.Version)
}

func TestRollbackUnknownVersion(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	update(t, m, "server", map[string]any{"port": float64(8080)})

	_, err := m.RollbackConfig(ctx, "server", 42)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrVersionNotFound))
}

func TestRollbackValidatesHistoricalPayload(t *testing.T) {
	// A rule added after v1 was stored rejects a rollback to it.
	rules := validate.NewRuleSet()
	m := newManager(t, config.WithRules(rules))
	ctx := context.Background()

	update(t, m, "server", map[string]any{"port": float64(80)})
	update(t, m, "server", map[string]any{"port": float64(8080)})

	rules.Add("port", validate.Range(1024, 65535))

	_, err := m.RollbackConfig(ctx, "server", 1)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, pkgerrors.ErrValidationFailed))

	latest, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Version, "failed rollback leaves state untouched")
}

func TestTrackChangesCarriesDiffSummary(t *testing.T) {
	m := newManager(t)

	sub, err := m.TrackChanges()
	require.NoError(t, err)

	update(t, m, "server", map[string]any{"port": float64(8080), "host": "localhost"})
	first := drainOne(t, sub)
	assert.Equal(t, "server", first.Name)
	assert.Equal(t, int64(0), first.OldVersion)
	assert.Equal(t, int64(1), first.NewVersion)
	assert.ElementsMatch(t, []string{"+port", "+host"}, first.DiffSummary)

	update(t, m, "server", map[string]any{"port": float64(9090), "host": "localhost", "debug": true})
	second := drainOne(t, sub)
	assert.Equal(t, int64(2), second.NewVersion)
	assert.ElementsMatch(t, []string{"~port", "+debug"}, second.DiffSummary)
}

func TestOnChangeExactPattern(t *testing.T) {
	m := newManager(t)

	serverSub, err := m.OnChange("config.server")
	require.NoError(t, err)

	update(t, m, "database", map[string]any{"url": "postgres://db"})
	update(t, m, "server", map[string]any{"port": float64(8080)})

	got := drainOne(t, serverSub)
	assert.Equal(t, "server", got.Name)

	select {
	case c := <-serverSub.C:
		t.Fatalf("unexpected event: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentUpdatesSameNameSerialized(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	const updates = 16
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := m.UpdateConfig(ctx, &types.ConfigSpec{
				Name: "server",
				Data: map[string]any{"seq": float64(i)},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	versions, err := m.Versions(ctx, "server")
	require.NoError(t, err)
	require.Len(t, versions, updates, "every distinct payload gets its own version")
	for i, v := range versions {
		assert.Equal(t, int64(i+1), v, "versions are dense and strictly increasing")
	}
}

func TestConcurrentUpdatesDifferentNames(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	const names = 8
	var wg sync.WaitGroup
	for i := 0; i < names; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("cfg-%d", i)
			for v := 0; v < 5; v++ {
				_, err := m.UpdateConfig(ctx, &types.ConfigSpec{
					Name: name,
					Data: map[string]any{"v": float64(v)},
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < names; i++ {
		latest, err := m.GetConfig(ctx, fmt.Sprintf("cfg-%d", i))
		require.NoError(t, err)
		assert.Equal(t, int64(5), latest.Version)
	}
}

func TestReturnedSpecIsPrivateCopy(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	update(t, m, "server", map[string]any{"limits": map[string]any{"rate": float64(10)}})

	got, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	got.Data["limits"].(map[string]any)["rate"] = float64(999)

	again, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, float64(10), again.Data["limits"].(map[string]any)["rate"])
}

func TestEnvironmentAndMetadataPassthrough(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	spec, err := m.UpdateConfig(ctx, &types.ConfigSpec{
		Name:        "server",
		Environment: "staging",
		Data:        map[string]any{"port": float64(8080)},
		Metadata:    map[string]any{"owner": "platform"},
	})
	require.NoError(t, err)
	assert.Equal(t, "staging", spec.Environment)

	got, err := m.GetConfig(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, "staging", got.Environment)
	assert.Equal(t, "platform", got.Metadata["owner"])
}

func TestCloseRejectsOperations(t *testing.T) {
	m, err := config.NewManager(memstore.New())
	require.NoError(t, err)

	sub, err := m.TrackChanges()
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close()) // idempotent

	_, ok := <-sub.C
	assert.False(t, ok, "subscriptions close with the manager")

	_, err = m.GetConfig(context.Background(), "server")
	assert.True(t, stderrors.Is(err, pkgerrors.ErrManagerClosed))

	_, err = m.UpdateConfig(context.Background(), &types.ConfigSpec{Name: "server"})
	assert.True(t, stderrors.Is(err, pkgerrors.ErrManagerClosed))
}

func TestManagerWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	m := newManager(t, config.WithMetricsRegistry(registry))

	update(t, m, "server", map[string]any{"port": float64(8080)})
	update(t, m, "server", map[string]any{"port": float64(8080)}) // noop

	_, err := m.GetConfig(context.Background(), "server")
	require.NoError(t, err)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "confstream_config_updates_total" {
			found = true
		}
	}
	assert.True(t, found, "update counter should be registered and populated")
}
