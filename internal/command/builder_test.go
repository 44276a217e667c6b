package command

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taoyao-code/zkpush-server/internal/device"
	"github.com/taoyao-code/zkpush-server/internal/rtlog"
	"github.com/taoyao-code/zkpush-server/internal/timecodec"
)

// 固定时钟：1700001234 % 10000 = 1234
var fixedNow = func() time.Time { return time.Unix(1_700_001_234, 0) }

func newTestBuilder() *Builder {
	return NewBuilder(TimeIDs{Now: fixedNow}, fixedNow)
}

func TestDoorOpenFormatting(t *testing.T) {
	b := newTestBuilder()

	tests := []struct {
		door, seconds int
		want          string
	}{
		{1, 5, "CONTROL DEVICE 01010105"},
		{1, 12, "CONTROL DEVICE 01010112"},
		{2, 0, "CONTROL DEVICE 01020100"},
		{1, 120, "CONTROL DEVICE 010101120"},
	}
	for _, tt := range tests {
		c, err := b.DoorOpen(tt.door, tt.seconds)
		require.NoError(t, err)
		assert.Equal(t, tt.want, c.Body)
		assert.Equal(t, 1234, c.ID)
		assert.Equal(t, "C:1234:"+tt.want, c.String())
	}

	_, err := b.DoorOpen(0, 5)
	assert.ErrorIs(t, err, ErrInvalidDoor)
	_, err = b.DoorOpen(1, -1)
	assert.ErrorIs(t, err, ErrInvalidSeconds)
}

func TestPassageAndControl(t *testing.T) {
	b := newTestBuilder()
	assert.Equal(t, "CONTROL DEVICE 010102FF00", b.Passage(true).Body)
	assert.Equal(t, "CONTROL DEVICE 0101020000", b.Passage(false).Body)

	c, err := b.Control(" 01010103 ")
	require.NoError(t, err)
	assert.Equal(t, "CONTROL DEVICE 01010103", c.Body)

	_, err = b.Control("  ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestAddCard(t *testing.T) {
	b := newTestBuilder()
	cmds, pin, err := b.AddCard(CardRequest{
		CardNo:    "0x1A2B3C",
		Name:      "Ivan\tPetrov",
		Pin:       "77",
		StartTime: "01-01-2026 00:00:00",
		EndTime:   "31-12-2026 23:59:59",
		DoorMask:  3,
	})
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.Equal(t, "77", pin)

	start, _ := timecodec.Encode("01-01-2026 00:00:00")
	end, _ := timecodec.Encode("31-12-2026 23:59:59")

	assert.Equal(t, []int{1234, 1235, 1236}, []int{cmds[0].ID, cmds[1].ID, cmds[2].ID})
	assert.True(t, strings.HasPrefix(cmds[0].Body, "DATA UPDATE user CardNo=1715004\tPin=77\t"))
	assert.Contains(t, cmds[0].Body, "StartTime="+itoa(start))
	assert.Contains(t, cmds[0].Body, "EndTime="+itoa(end))
	assert.Contains(t, cmds[0].Body, "Name=Ivan Petrov")
	assert.Equal(t, "DATA UPDATE mulcarduser Pin=77\tCardNo=1715004\tLossCardFlag=0\tCardType=0", cmds[1].Body)
	assert.Equal(t, "DATA UPDATE userauthorize Pin=77\tAuthorizeTimezoneId=1\tAuthorizeDoorId=3\tDevID=1", cmds[2].Body)
}

func TestAddCard_FallbackPinAndErrors(t *testing.T) {
	b := newTestBuilder()
	cmds, pin, err := b.AddCard(CardRequest{CardNo: "123456"})
	require.NoError(t, err)
	assert.Equal(t, "1234", pin[len(pin)-4:])
	assert.Contains(t, cmds[0].Body, "StartTime=0\tEndTime=0")
	assert.Contains(t, cmds[2].Body, "AuthorizeDoorId=1")

	_, _, err = b.AddCard(CardRequest{CardNo: "12", StartTime: "2026-01-01"})
	assert.ErrorIs(t, err, timecodec.ErrParse)

	_, _, err = b.AddCard(CardRequest{})
	assert.ErrorIs(t, err, ErrMissingCard)

	_, _, err = b.AddCard(CardRequest{CardNo: "12ab"})
	assert.ErrorIs(t, err, rtlog.ErrCardDecode)
}

func TestDeleteUser(t *testing.T) {
	b := newTestBuilder()
	one := b.DeleteUser("77")
	require.Len(t, one, 3)
	assert.Equal(t, "DATA DELETE user Pin=77", one[0].Body)
	assert.Equal(t, "DATA DELETE mulcarduser Pin=77", one[1].Body)
	assert.Equal(t, "DATA DELETE userauthorize Pin=77", one[2].Body)

	all := b.DeleteUser("")
	for _, c := range all {
		assert.True(t, strings.HasSuffix(c.Body, "Pin=*"), c.Body)
	}
}

func TestQueryDistinctIDs(t *testing.T) {
	b := newTestBuilder()
	cmds := b.Query(UserTableQueries()...)
	require.Len(t, cmds, 3)
	assert.Equal(t, "DATA QUERY tablename=user,fielddesc=*,filter=*", cmds[0].Body)
	seen := map[int]bool{}
	for _, c := range cmds {
		assert.False(t, seen[c.ID])
		seen[c.ID] = true
	}
}

func TestCounterIDs(t *testing.T) {
	var ids CounterIDs
	first := ids.Next(3)
	second := ids.Next(2)
	assert.Equal(t, []int{1, 2, 3}, first)
	assert.Equal(t, []int{4, 5}, second)
	assert.IsType(t, &CounterIDs{}, NewIDSource("counter"))
	assert.IsType(t, TimeIDs{}, NewIDSource("time"))
}

type countingRecorder struct{ counts map[string]int }

func (r *countingRecorder) CommandsQueued(kind string, n int) { r.counts[kind] += n }

func TestService_EnqueuesBatches(t *testing.T) {
	store := device.NewMemoryStore()
	ctx := context.Background()
	_, err := store.Register(ctx, "SN1", nil)
	require.NoError(t, err)

	rec := &countingRecorder{counts: map[string]int{}}
	svc := NewService(newTestBuilder(), store, rec, zap.NewNop())

	_, err = svc.OpenDoor(ctx, "SN1", 1, 5)
	require.NoError(t, err)
	_, _, err = svc.AddCard(ctx, "SN1", CardRequest{CardNo: "100", Pin: "9"})
	require.NoError(t, err)

	n, err := store.Pending(ctx, "SN1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	head, ok, err := store.Dequeue(ctx, "SN1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "C:1234:CONTROL DEVICE 01010105", head)
	assert.Equal(t, 1, rec.counts["door_open"])
	assert.Equal(t, 3, rec.counts["add_card"])
}

func TestService_UnknownDevice(t *testing.T) {
	svc := NewService(newTestBuilder(), device.NewMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := svc.OpenDoor(ctx, "ghost", 1, 5)
	assert.True(t, errors.Is(err, device.ErrUnknownDevice))
	_, err = svc.Passage(ctx, "ghost", true)
	assert.True(t, errors.Is(err, device.ErrUnknownDevice))
	_, err = svc.DeleteUser(ctx, "ghost", "")
	assert.True(t, errors.Is(err, device.ErrUnknownDevice))
	_, err = svc.Query(ctx, "ghost", UserTableQueries()...)
	assert.True(t, errors.Is(err, device.ErrUnknownDevice))
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }

func TestService_QueryWithHook(t *testing.T) {
	store := device.NewMemoryStore()
	ctx := context.Background()
	_, err := store.Register(ctx, "SN1", nil)
	require.NoError(t, err)
	svc := NewService(newTestBuilder(), store, nil, nil)

	var seen []int
	cmds, err := svc.QueryWith(ctx, "SN1", func(cmds []Command) error {
		for _, c := range cmds {
			seen = append(seen, c.ID)
		}
		return nil
	}, QuerySpec{Table: "user"})
	require.NoError(t, err)
	assert.Equal(t, []int{cmds[0].ID}, seen)

	hookErr := errors.New("busy")
	_, err = svc.QueryWith(ctx, "SN1", func([]Command) error { return hookErr }, QuerySpec{Table: "user"})
	assert.ErrorIs(t, err, hookErr)

	n, err := store.Pending(ctx, "SN1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = svc.Query(ctx, "SN1")
	assert.ErrorIs(t, err, ErrNoQueryTable)
}
