package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucaRoldo98/ApPills/models"
)

func (f *fakeMQTT) differences() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedMessage
	for _, msg := range f.published {
		if _, ok := msg.Payload.(models.DiffMessage); ok {
			out = append(out, msg)
		}
	}
	return out
}

func newTestPillDiff() (*PillDiffService, *fakeMQTT, *fakeCatalogClient, *fakeDeviceClient) {
	bus := newFakeMQTT()
	catalog := newFakeCatalogClient()
	devices := &fakeDeviceClient{}
	svc := NewPillDiffService(testConfig(), bus, catalog, devices)
	svc.Now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	catalog.uris["1/2"] = "http://device"
	return svc, bus, catalog, devices
}

func TestPillDiffOpenSnapshotsCounters(t *testing.T) {
	svc, bus, catalog, devices := newTestPillDiff()
	devices.counters = []int{5, 3}

	svc.HandleLid(nil, newLidMessage(t, "appPills/1/2/lid", 1))

	require.Len(t, catalog.pills, 1)
	assert.Equal(t, []int{5, 3}, catalog.pills[0].CountOpened)
	assert.Empty(t, bus.differences())
}

func TestPillDiffClosePublishesPerSlotDifference(t *testing.T) {
	svc, bus, catalog, devices := newTestPillDiff()

	devices.counters = []int{5, 3}
	svc.HandleLid(nil, newLidMessage(t, "appPills/1/2/lid", 1))

	// 合盖时槽0少了2粒
	devices.counters = []int{3, 3}
	svc.HandleLid(nil, newLidMessage(t, "appPills/1/2/lid", 0))

	diffs := bus.differences()
	require.Len(t, diffs, 1)
	assert.Equal(t, "appPills/1/2/pillDifference", diffs[0].Topic)
	msg := diffs[0].Payload.(models.DiffMessage)
	assert.Equal(t, []int{-2, 0}, msg.E.Difference)

	// 快照已被消费
	assert.Empty(t, catalog.pills)
}

func TestPillDiffDeviceUnreachableSkipsEvent(t *testing.T) {
	svc, bus, catalog, devices := newTestPillDiff()
	devices.countersErr = ErrDeviceUnreachable

	svc.HandleLid(nil, newLidMessage(t, "appPills/1/2/lid", 1))

	// 读不到药量时不登记快照也不发布
	assert.Empty(t, catalog.pills)
	assert.Empty(t, bus.differences())
}

func TestPillDiffCloseWithoutSnapshotDoesNothing(t *testing.T) {
	svc, bus, _, devices := newTestPillDiff()
	devices.counters = []int{3, 3}

	svc.HandleLid(nil, newLidMessage(t, "appPills/1/2/lid", 0))
	assert.Empty(t, bus.differences())
}

func TestPillDiffUnknownDeviceSkipsEvent(t *testing.T) {
	svc, bus, catalog, _ := newTestPillDiff()

	svc.HandleLid(nil, newLidMessage(t, "appPills/9/9/lid", 1))
	assert.Empty(t, catalog.pills)
	assert.Empty(t, bus.differences())
}
