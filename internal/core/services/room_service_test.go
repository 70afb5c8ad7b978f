package services

import (
	"context"
	"encoding/json"
	"testing"

	"devstream/internal/core/domain"
	"devstream/internal/infrastructure/repositories/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	broadcaster domain.ConnectionID = "broadcaster-1"
	viewerA     domain.ConnectionID = "viewer-a"
	viewerB     domain.ConnectionID = "viewer-b"
	outsider    domain.ConnectionID = "outsider"
)

type roomFixture struct {
	svc      *roomService
	notifier *recordingNotifier
	metrics  *MockMetrics
}

func newRoomFixture(t *testing.T) *roomFixture {
	notifier := newRecordingNotifier(broadcaster, viewerA, viewerB, outsider)
	metrics := newMockMetrics()
	svc := NewRoomService(
		memory.NewMemoryRoomRepository(),
		notifier,
		metrics,
		zaptest.NewLogger(t).Sugar(),
	).(*roomService)
	return &roomFixture{svc: svc, notifier: notifier, metrics: metrics}
}

func TestRoomService_StartStream(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))

	started := f.notifier.events(broadcaster, domain.EventStreamStarted)
	require.Len(t, started, 1)
	assert.Equal(t, domain.StreamStarted{RoomID: "demo"}, started[0].Data)
	assert.Equal(t, 1, f.notifier.members("demo"))
	f.metrics.AssertCalled(t, "StreamStarted", domain.RoomID("demo"))
}

func TestRoomService_StartStreamTwice(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	err := f.svc.StartStream(ctx, viewerA, "demo")
	assert.ErrorIs(t, err, domain.ErrStreamExists)

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomSummary{{RoomID: "demo", ViewerCount: 0}}, active)

	// the loser gets nothing but the error
	assert.Empty(t, f.notifier.eventNames(viewerA))
}

func TestRoomService_StartStreamInvalidID(t *testing.T) {
	f := newRoomFixture(t)

	err := f.svc.StartStream(context.Background(), broadcaster, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
}

func TestRoomService_JoinStream(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))

	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerB, "demo"))

	joined := f.notifier.events(broadcaster, domain.EventViewerJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, domain.ViewerChange{ViewerID: viewerA, ViewerCount: 1}, joined[0].Data)
	assert.Equal(t, domain.ViewerChange{ViewerID: viewerB, ViewerCount: 2}, joined[1].Data)

	// viewers are not told about each other
	assert.Empty(t, f.notifier.events(viewerA, domain.EventViewerJoined))
	assert.Equal(t, 3, f.notifier.members("demo"))
}

func TestRoomService_JoinMissingStream(t *testing.T) {
	f := newRoomFixture(t)

	err := f.svc.JoinStream(context.Background(), viewerA, "nope")
	require.ErrorIs(t, err, domain.ErrStreamNotFound)
	assert.Equal(t, "Stream not found", err.Error())

	for _, conn := range []domain.ConnectionID{broadcaster, viewerA, viewerB, outsider} {
		assert.Empty(t, f.notifier.events(conn, domain.EventViewerJoined))
	}
}

func TestRoomService_BroadcasterCannotJoinOwnRoom(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))

	err := f.svc.JoinStream(ctx, broadcaster, "demo")
	assert.ErrorIs(t, err, domain.ErrSelfJoin)
}

func TestRoomService_RejoinCountsOnce(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))

	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, active[0].ViewerCount)
	f.metrics.AssertNumberOfCalls(t, "ViewerJoined", 1)
}

func TestRoomService_StopStream(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))

	require.NoError(t, f.svc.StopStream(ctx, broadcaster, "demo"))

	for _, conn := range []domain.ConnectionID{broadcaster, viewerA} {
		ended := f.notifier.events(conn, domain.EventStreamEnded)
		require.Len(t, ended, 1, "connection %s", conn)
		assert.Equal(t, domain.StreamEnded{RoomID: "demo"}, ended[0].Data)
	}
	assert.Empty(t, f.notifier.events(outsider, domain.EventStreamEnded))
	assert.Zero(t, f.notifier.members("demo"))

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// the id can be reused
	assert.NoError(t, f.svc.StartStream(ctx, viewerA, "demo"))
}

func TestRoomService_StopStreamRequiresBroadcaster(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))

	for _, conn := range []domain.ConnectionID{viewerA, outsider} {
		err := f.svc.StopStream(ctx, conn, "demo")
		assert.ErrorIs(t, err, domain.ErrNotBroadcaster)
	}
	assert.Empty(t, f.notifier.events(viewerA, domain.EventStreamEnded))

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestRoomService_StopMissingStreamIsNoop(t *testing.T) {
	f := newRoomFixture(t)

	assert.NoError(t, f.svc.StopStream(context.Background(), broadcaster, "ghost"))
	assert.Empty(t, f.notifier.roomSends)
}

func TestRoomService_LeaveStream(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerB, "demo"))

	require.NoError(t, f.svc.LeaveStream(ctx, viewerA, "demo"))

	left := f.notifier.events(broadcaster, domain.EventViewerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.ViewerChange{ViewerID: viewerA, ViewerCount: 1}, left[0].Data)
	assert.Equal(t, 2, f.notifier.members("demo"))

	// leaving again, or leaving a room never joined, does nothing
	require.NoError(t, f.svc.LeaveStream(ctx, viewerA, "demo"))
	require.NoError(t, f.svc.LeaveStream(ctx, outsider, "demo"))
	require.NoError(t, f.svc.LeaveStream(ctx, viewerA, "ghost"))
	assert.Len(t, f.notifier.events(broadcaster, domain.EventViewerLeft), 1)
}

func TestRoomService_BroadcasterLeaveEndsStream(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))

	require.NoError(t, f.svc.LeaveStream(ctx, broadcaster, "demo"))

	assert.Len(t, f.notifier.events(viewerA, domain.EventStreamEnded), 1)
	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestRoomService_Relay(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))

	offer := mustJSON(t, map[string]string{"type": "offer", "sdp": "v=0"})
	answer := mustJSON(t, map[string]string{"type": "answer", "sdp": "v=0"})
	candidate := mustJSON(t, map[string]interface{}{"candidate": "candidate:1 1 udp", "sdpMLineIndex": 0})

	require.NoError(t, f.svc.Relay(ctx, broadcaster, domain.SignalOffer, "demo", viewerA, offer))
	require.NoError(t, f.svc.Relay(ctx, viewerA, domain.SignalAnswer, "demo", broadcaster, answer))
	require.NoError(t, f.svc.Relay(ctx, viewerA, domain.SignalICECandidate, "demo", broadcaster, candidate))

	offers := f.notifier.events(viewerA, domain.EventOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, domain.ForwardedOffer{RoomID: "demo", Offer: offer, BroadcasterID: broadcaster}, offers[0].Data)

	answers := f.notifier.events(broadcaster, domain.EventAnswer)
	require.Len(t, answers, 1)
	assert.Equal(t, domain.ForwardedAnswer{RoomID: "demo", Answer: answer, ViewerID: viewerA}, answers[0].Data)

	candidates := f.notifier.events(broadcaster, domain.EventICECandidate)
	require.Len(t, candidates, 1)
	forwarded := candidates[0].Data.(domain.ForwardedCandidate)
	assert.Equal(t, viewerA, forwarded.SenderID)
	assert.JSONEq(t, string(candidate), string(forwarded.Candidate))

	f.metrics.AssertNumberOfCalls(t, "SignalRelayed", 3)
}

func TestRoomService_RelayRejections(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))
	payload := json.RawMessage(`{"sdp":"x"}`)

	tests := []struct {
		name   string
		sender domain.ConnectionID
		room   domain.RoomID
		target domain.ConnectionID
		want   error
	}{
		{name: "unknown room", sender: broadcaster, room: "ghost", target: viewerA, want: domain.ErrStreamNotFound},
		{name: "sender outside room", sender: outsider, room: "demo", target: viewerA, want: domain.ErrNotRoomMember},
		{name: "missing target", sender: broadcaster, room: "demo", target: "", want: domain.ErrMissingTarget},
		{name: "missing room", sender: broadcaster, room: "", target: viewerA, want: domain.ErrInvalidRoomID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Relay(ctx, tt.sender, domain.SignalOffer, tt.room, tt.target, payload)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.notifier.events(viewerA, domain.EventOffer))
}

func TestRoomService_RelayToDepartedPeerIsDropped(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "demo"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "demo"))
	require.NoError(t, f.svc.LeaveStream(ctx, viewerA, "demo"))

	err := f.svc.Relay(ctx, broadcaster, domain.SignalOffer, "demo", viewerA, json.RawMessage(`{}`))
	assert.NoError(t, err)
	assert.Empty(t, f.notifier.events(viewerA, domain.EventOffer))
}

func TestRoomService_BroadcasterDisconnectWithoutViewers(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "solo"))

	require.NoError(t, f.svc.HandleDisconnect(ctx, broadcaster))

	ended := 0
	for _, e := range f.notifier.roomSends {
		if e.Event == domain.EventStreamEnded && e.Room == "solo" {
			ended++
		}
	}
	assert.Equal(t, 1, ended)

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	// a duplicate disconnect changes nothing
	require.NoError(t, f.svc.HandleDisconnect(ctx, broadcaster))
	assert.Len(t, f.notifier.roomSends, 1)
}

func TestRoomService_DisconnectCleansEveryRoom(t *testing.T) {
	f := newRoomFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.StartStream(ctx, broadcaster, "one"))
	require.NoError(t, f.svc.StartStream(ctx, viewerB, "two"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "one"))
	require.NoError(t, f.svc.JoinStream(ctx, viewerA, "two"))
	require.NoError(t, f.svc.JoinStream(ctx, broadcaster, "two"))

	require.NoError(t, f.svc.HandleDisconnect(ctx, broadcaster))

	// room one ended for its viewer, room two lost a viewer
	assert.Len(t, f.notifier.events(viewerA, domain.EventStreamEnded), 1)
	left := f.notifier.events(viewerB, domain.EventViewerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, domain.ViewerChange{ViewerID: broadcaster, ViewerCount: 1}, left[0].Data)

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.RoomSummary{{RoomID: "two", ViewerCount: 1}}, active)
}
