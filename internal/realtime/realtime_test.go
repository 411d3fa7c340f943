package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"foodtrack/internal/contracts"
	"foodtrack/internal/modules/location"
	"foodtrack/internal/modules/order"
	"foodtrack/internal/modules/profile"
	"foodtrack/internal/types"
)

// fakeConn feeds frames from in and records written frames on out.
type fakeConn struct {
	in     chan contracts.Frame
	out    chan contracts.Frame
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan contracts.Frame, 16),
		out:    make(chan contracts.Frame, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case f, ok := <-c.in:
		if !ok {
			return io.EOF
		}
		*(v.(*contracts.Frame)) = f
		return nil
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	c.out <- v.(contracts.Frame)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func expectFrame(t *testing.T, c *fakeConn, event string) contracts.Frame {
	t.Helper()
	select {
	case f := <-c.out:
		if f.Event != event {
			t.Fatalf("expected %s, got %s (%s)", event, f.Event, string(f.Data))
		}
		return f
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", event)
	}
	return contracts.Frame{}
}

func expectNone(t *testing.T, c *fakeConn) {
	t.Helper()
	select {
	case f := <-c.out:
		t.Fatalf("unexpected frame %s (%s)", f.Event, string(f.Data))
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeOrders struct {
	orders map[types.ID]*order.Order
}

func (f *fakeOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) ActiveForDriver(_ context.Context, driverID types.ID) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range f.orders {
		if o.DriverID != nil && *o.DriverID == driverID && !order.IsTerminal(o.Status) {
			out = append(out, o)
		}
	}
	return out, nil
}

func driverPtr(id types.ID) *types.ID { return &id }

func testGateway() (*Hub, *Gateway) {
	hub := NewHub(nil)
	orders := &fakeOrders{orders: map[types.ID]*order.Order{
		"A": {ID: "A", ClientID: "c1", DriverID: driverPtr("d1"), Status: order.StatusOnTheWay},
		"B": {ID: "B", ClientID: "c1", Status: order.StatusPending},
		"C": {ID: "C", ClientID: "c2", Status: order.StatusPending},
	}}
	return hub, NewGateway(hub, orders, location.NewService(nil, nil, nil), nil)
}

func frame(t *testing.T, event string, payload any) contracts.Frame {
	t.Helper()
	f, err := contracts.NewFrame(event, payload)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	return f
}

func sortedRooms(h *Hub, s *Session) []string {
	r := h.Rooms(s)
	sort.Strings(r)
	return r
}

func TestJoiningSecondOrderRoomLeavesFirst(t *testing.T) {
	hub, gw := testGateway()
	ctx := context.Background()
	conn := newFakeConn()
	s := hub.Register(conn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer hub.Unregister(s)

	gw.Handle(ctx, s, frame(t, contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: "A"}))
	gw.Handle(ctx, s, frame(t, contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: "B"}))

	got := sortedRooms(hub, s)
	if len(got) != 2 || got[0] != "order:B" || got[1] != "user:c1" {
		t.Fatalf("expected {order:B, user:c1}, got %v", got)
	}
	if hub.RoomSize(contracts.OrderRoom("A")) != 0 {
		t.Fatal("room A should be empty")
	}

	hub.Broadcast(ctx, contracts.OrderRoom("A"), contracts.EventOrderStatusChanged, nil)
	expectNone(t, conn)

	gw.Handle(ctx, s, frame(t, contracts.EventLeaveOrderRoom, nil))
	gw.Handle(ctx, s, frame(t, contracts.EventLeaveOrderRoom, nil))
	if got := hub.Rooms(s); len(got) != 1 || got[0] != "user:c1" {
		t.Fatalf("expected only personal room, got %v", got)
	}
	expectNone(t, conn)
}

func TestJoinOrderRoomAuthorization(t *testing.T) {
	hub, gw := testGateway()
	ctx := context.Background()
	conn := newFakeConn()
	s := hub.Register(conn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer hub.Unregister(s)

	gw.Handle(ctx, s, frame(t, contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: "C"}))
	f := expectFrame(t, conn, contracts.EventError)
	var e contracts.ErrorEvent
	_ = json.Unmarshal(f.Data, &e)
	if e.Message != "forbidden" || e.Event != contracts.EventJoinOrderRoom {
		t.Fatalf("unexpected error payload %+v", e)
	}

	gw.Handle(ctx, s, frame(t, contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: "missing"}))
	expectFrame(t, conn, contracts.EventError)
}

func TestAdminTrackingIsAdminOnly(t *testing.T) {
	hub, gw := testGateway()
	ctx := context.Background()

	dConn := newFakeConn()
	driver := hub.Register(dConn, types.Identity{ID: "d1", Role: types.RoleDriver})
	defer hub.Unregister(driver)
	gw.Handle(ctx, driver, frame(t, contracts.EventJoinAdminTracking, nil))
	expectFrame(t, dConn, contracts.EventError)

	aConn := newFakeConn()
	admin := hub.Register(aConn, types.Identity{ID: "a1", Role: types.RoleAdmin})
	defer hub.Unregister(admin)
	gw.Handle(ctx, admin, frame(t, contracts.EventJoinAdminTracking, nil))
	if hub.RoomSize(contracts.AdminTrackingRoom) != 1 {
		t.Fatal("admin should be in tracking room")
	}
}

func TestShareDriverLocationFansOut(t *testing.T) {
	hub, gw := testGateway()
	ctx := context.Background()

	aConn := newFakeConn()
	admin := hub.Register(aConn, types.Identity{ID: "a1", Role: types.RoleAdmin})
	defer hub.Unregister(admin)
	gw.Handle(ctx, admin, frame(t, contracts.EventJoinAdminTracking, nil))

	cConn := newFakeConn()
	client := hub.Register(cConn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer hub.Unregister(client)
	gw.Handle(ctx, client, frame(t, contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: "A"}))

	dConn := newFakeConn()
	driver := hub.Register(dConn, types.Identity{ID: "d1", Role: types.RoleDriver})
	defer hub.Unregister(driver)

	gw.Handle(ctx, driver, frame(t, contracts.EventShareDriverLocation, contracts.ShareLocation{Lat: 25.03, Lng: 121.56, Accuracy: 5}))

	f := expectFrame(t, aConn, contracts.EventDriverLocationBroadcast)
	var ev contracts.LocationEvent
	_ = json.Unmarshal(f.Data, &ev)
	if ev.DriverID != "d1" || ev.Lat != 25.03 {
		t.Fatalf("unexpected admin payload %+v", ev)
	}
	f = expectFrame(t, cConn, contracts.EventDriverLocationBroadcast)
	_ = json.Unmarshal(f.Data, &ev)
	if ev.OrderID != "A" {
		t.Fatalf("expected order A on per-order fan-out, got %+v", ev)
	}

	// malformed samples are dropped without any reply
	gw.Handle(ctx, driver, frame(t, contracts.EventShareDriverLocation, contracts.ShareLocation{Lat: 200, Lng: 0}))
	expectNone(t, aConn)
	expectNone(t, dConn)

	// clients may not originate location events
	gw.Handle(ctx, client, frame(t, contracts.EventShareDriverLocation, contracts.ShareLocation{Lat: 1, Lng: 1}))
	expectFrame(t, cConn, contracts.EventError)
	expectNone(t, aConn)
}

func TestUpdateDriverLocationRequiresAssignedDriver(t *testing.T) {
	hub, gw := testGateway()
	ctx := context.Background()

	cConn := newFakeConn()
	client := hub.Register(cConn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer hub.Unregister(client)
	gw.Handle(ctx, client, frame(t, contracts.EventJoinOrderRoom, contracts.RoomRequest{OrderID: "A"}))

	otherConn := newFakeConn()
	other := hub.Register(otherConn, types.Identity{ID: "d2", Role: types.RoleDriver})
	defer hub.Unregister(other)
	gw.Handle(ctx, other, frame(t, contracts.EventUpdateDriverLocation, contracts.UpdateLocation{OrderID: "A", Lat: 1, Lng: 1}))
	expectFrame(t, otherConn, contracts.EventError)
	expectNone(t, cConn)

	dConn := newFakeConn()
	driver := hub.Register(dConn, types.Identity{ID: "d1", Role: types.RoleDriver})
	defer hub.Unregister(driver)
	gw.Handle(ctx, driver, frame(t, contracts.EventUpdateDriverLocation, contracts.UpdateLocation{OrderID: "A", Lat: 1, Lng: 1}))
	f := expectFrame(t, cConn, contracts.EventDriverLocationUpdate)
	var ev contracts.LocationEvent
	_ = json.Unmarshal(f.Data, &ev)
	if ev.OrderID != "A" || ev.DriverID != "d1" {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

func TestServeRejectsUnknownEventsAndCleansUp(t *testing.T) {
	hub, gw := testGateway()
	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		gw.Serve(context.Background(), conn, types.Identity{ID: "c9", Role: types.RoleClient})
		close(done)
	}()

	conn.in <- contracts.Frame{Event: "dance"}
	expectFrame(t, conn, contracts.EventError)

	close(conn.in)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after read failure")
	}
	if hub.RoomSize(contracts.UserRoom("c9")) != 0 {
		t.Fatal("session still registered after Serve returned")
	}
}

func TestRoomDeliveryPreservesOrder(t *testing.T) {
	hub := NewHub(nil)
	conn := newFakeConn()
	s := hub.Register(conn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer hub.Unregister(s)
	hub.Join(s, "order:X")

	for i := 0; i < 40; i++ {
		hub.Broadcast(context.Background(), "order:X", contracts.EventOrderStatusChanged, map[string]int{"seq": i})
	}
	for i := 0; i < 40; i++ {
		f := expectFrame(t, conn, contracts.EventOrderStatusChanged)
		var got map[string]int
		_ = json.Unmarshal(f.Data, &got)
		if got["seq"] != i {
			t.Fatalf("frame %d arrived as %d", i, got["seq"])
		}
	}
}

func TestDispatcherAssignAndReassign(t *testing.T) {
	hub := NewHub(nil)
	d := NewDispatcher(hub)
	ctx := context.Background()

	d1Conn, d2Conn, adminConn, clientConn := newFakeConn(), newFakeConn(), newFakeConn(), newFakeConn()
	d1 := hub.Register(d1Conn, types.Identity{ID: "d1", Role: types.RoleDriver})
	d2 := hub.Register(d2Conn, types.Identity{ID: "d2", Role: types.RoleDriver})
	admin := hub.Register(adminConn, types.Identity{ID: "a1", Role: types.RoleAdmin})
	client := hub.Register(clientConn, types.Identity{ID: "c1", Role: types.RoleClient})
	for _, s := range []*Session{d1, d2, admin, client} {
		defer hub.Unregister(s)
	}
	hub.Join(admin, contracts.AdminTrackingRoom)
	hub.SwitchOrderRoom(client, contracts.OrderRoom("o1"))

	o := order.Order{ID: "o1", ClientID: "c1", DriverID: driverPtr("d1"), Status: order.StatusAssigned}
	d.OrderChanged(ctx, order.Transition{Order: o, From: order.StatusPending, To: order.StatusAssigned, At: time.Now()})

	expectFrame(t, clientConn, contracts.EventOrderAssigned)
	expectFrame(t, clientConn, contracts.EventOrderStatusChanged)
	expectFrame(t, d1Conn, contracts.EventOrderAssigned)
	expectFrame(t, d1Conn, contracts.EventOrderStatusUpdate)
	expectFrame(t, adminConn, contracts.EventOrderStatusUpdateAdmin)
	expectNone(t, d2Conn)

	o.DriverID = driverPtr("d2")
	d.OrderChanged(ctx, order.Transition{Order: o, From: order.StatusHeadingToRestaurant, To: order.StatusAssigned, PreviousDriverID: driverPtr("d1"), At: time.Now()})

	expectFrame(t, d1Conn, contracts.EventOrderReassignedAway)
	expectFrame(t, d2Conn, contracts.EventOrderReassignedToYou)
	expectFrame(t, d2Conn, contracts.EventOrderStatusUpdate)
	expectNone(t, d1Conn)
}

func TestDispatcherCancellationPayload(t *testing.T) {
	hub := NewHub(nil)
	d := NewDispatcher(hub)
	conn := newFakeConn()
	s := hub.Register(conn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer hub.Unregister(s)
	hub.SwitchOrderRoom(s, contracts.OrderRoom("o1"))

	penalty := decimal.RequireFromString("15")
	refund := decimal.RequireFromString("135")
	o := order.Order{ID: "o1", ClientID: "c1", Status: order.StatusCancelledByClientWithPenalty, PenaltyAmount: &penalty, RefundAmount: &refund}
	d.OrderChanged(context.Background(), order.Transition{Order: o, From: order.StatusOnTheWay, To: o.Status, At: time.Now()})

	f := expectFrame(t, conn, contracts.EventOrderCancelled)
	var ev contracts.OrderEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.PenaltyAmount != "15.00" || ev.RefundAmount != "135.00" || ev.PreviousStatus != "on_the_way" {
		t.Fatalf("unexpected payload %+v", ev)
	}
	expectFrame(t, conn, contracts.EventOrderStatusChanged)
}

func TestDispatcherVerification(t *testing.T) {
	hub := NewHub(nil)
	d := NewDispatcher(hub)
	conn := newFakeConn()
	s := hub.Register(conn, types.Identity{ID: "d1", Role: types.RoleDriver})
	defer hub.Unregister(s)

	d.VerificationChanged(context.Background(), profile.Profile{DriverID: "d1", VerificationStatus: profile.VerificationApproved})
	f := expectFrame(t, conn, contracts.EventVerificationUpdate)
	var ev contracts.VerificationEvent
	_ = json.Unmarshal(f.Data, &ev)
	if ev.Status != "approved" {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

func TestRedisRelayCrossInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	newInstance := func() *Hub {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		hub := NewHub(nil)
		if err := NewRedisRelay(rdb, hub, nil).Start(ctx); err != nil {
			t.Fatalf("start relay: %v", err)
		}
		return hub
	}
	a, b := newInstance(), newInstance()

	conn := newFakeConn()
	s := b.Register(conn, types.Identity{ID: "c1", Role: types.RoleClient})
	defer b.Unregister(s)
	b.SwitchOrderRoom(s, contracts.OrderRoom("o1"))

	a.Broadcast(ctx, contracts.OrderRoom("o1"), contracts.EventOrderOnTheWay, contracts.OrderEvent{OrderID: "o1"})
	f := expectFrame(t, conn, contracts.EventOrderOnTheWay)
	var ev contracts.OrderEvent
	_ = json.Unmarshal(f.Data, &ev)
	if ev.OrderID != "o1" {
		t.Fatalf("unexpected payload %+v", ev)
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, []byte) error {
	p.calls++
	return errors.New("broker down")
}

type captureNotifier struct{ got []order.Transition }

func (c *captureNotifier) OrderChanged(_ context.Context, t order.Transition) { c.got = append(c.got, t) }

func TestOrderBusFallsBackToLocalAndDecodes(t *testing.T) {
	local := &captureNotifier{}
	pub := &failingPublisher{}
	bus := NewOrderBus(pub, local, nil)

	total := decimal.RequireFromString("20.50")
	tr := order.Transition{
		Order: order.Order{ID: "o1", ClientID: "c1", Status: order.StatusDelivered, Total: total},
		From:  order.StatusOnTheWay,
		To:    order.StatusDelivered,
		At:    time.Now().UTC().Truncate(time.Millisecond),
	}
	bus.OrderChanged(context.Background(), tr)
	if pub.calls != 1 || len(local.got) != 1 {
		t.Fatalf("expected publish attempt and local fallback, got calls=%d local=%d", pub.calls, len(local.got))
	}

	body, _ := json.Marshal(tr)
	if err := bus.Handle(context.Background(), amqp.Delivery{Body: body}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	got := local.got[1]
	if got.To != order.StatusDelivered || !got.Order.Total.Equal(total) || !got.At.Equal(tr.At) {
		t.Fatalf("transition not preserved: %+v", got)
	}
	if err := bus.Handle(context.Background(), amqp.Delivery{Body: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
}
