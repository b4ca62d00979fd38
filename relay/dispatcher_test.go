package relay

import (
	"context"
	"fmt"
	"testing"

	"github.com/hubcast/hubcast/hub"
	"github.com/hubcast/hubcast/proto"
)

func floatPtr(v float64) *float64 { return &v }

func testHub() *hub.SimHub {
	return hub.NewSimHubFromLayout(hub.Layout{
		Homes: []hub.Home{{ID: "h1", Name: "Home", IsPrimary: true}},
		Rooms: []hub.Room{{ID: "r1", Name: "Living Room", HomeID: "h1"}},
		Zones: []hub.Zone{{ID: "z1", Name: "Upstairs", HomeID: "h1"}},
		Groups: []hub.ServiceGroup{{
			ID: "g1", Name: "All Lights", HomeID: "h1",
			Services: []hub.ServiceRef{
				{AccessoryID: "A", ServiceID: "A-light"},
				{AccessoryID: "B", ServiceID: "B-light"},
				{AccessoryID: "C", ServiceID: "C-light"},
			},
		}},
		Scenes: []hub.Scene{{ID: "s1", Name: "Movie Night", HomeID: "h1"}},
		Accessories: []hub.Accessory{
			testLamp("A"), testLamp("B"), testLamp("C"),
		},
	})
}

func testLamp(id string) hub.Accessory {
	return hub.Accessory{
		ID: id, Name: "Lamp " + id, HomeID: "h1", RoomID: "r1", Reachable: true,
		Services: []hub.Service{{
			ID: id + "-light", Type: "lightbulb", Name: "Light",
			Characteristics: []hub.Characteristic{
				{Type: hub.CharPowerState, Format: hub.FormatBool, Value: false, Writable: true},
				{Type: hub.CharBrightness, Format: hub.FormatInt, Value: int64(50), Writable: true, MinValue: floatPtr(0), MaxValue: floatPtr(100)},
			},
		}},
	}
}

type eventRecorder struct {
	events []proto.Message
}

func (r *eventRecorder) emit(msg proto.Message) {
	r.events = append(r.events, msg)
}

func newTestDispatcher() (*Dispatcher, *hub.SimHub, *eventRecorder) {
	h := testHub()
	rec := &eventRecorder{}
	return NewDispatcher(h, rec.emit), h, rec
}

func request(id, action string, payload proto.Payload) proto.Message {
	return proto.Message{ID: id, Type: proto.TypeRequest, Action: action, Payload: payload}
}

func TestDispatcherEchoesIDAndAction(t *testing.T) {
	d, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("abc", ActionHomesList, nil))
	if resp.ID != "abc" {
		t.Errorf("Expected id abc, got %q", resp.ID)
	}
	if resp.Type != proto.TypeResponse {
		t.Errorf("Expected type response, got %q", resp.Type)
	}
	if resp.Action != ActionHomesList {
		t.Errorf("Expected action %s, got %q", ActionHomesList, resp.Action)
	}
	if resp.Error != nil {
		t.Errorf("Unexpected error: %+v", resp.Error)
	}

	homes, ok := resp.Payload["homes"].([]any)
	if !ok || len(homes) != 1 {
		t.Fatalf("Expected one home in payload, got %v", resp.Payload["homes"])
	}
	home, _ := homes[0].(map[string]any)
	if home["id"] != "h1" || home["isPrimary"] != true {
		t.Errorf("Unexpected home payload: %v", home)
	}
}

func TestDispatcherUnknownAction(t *testing.T) {
	d, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", "nonsense.action", nil))
	if resp.Error == nil || resp.Error.Code != proto.CodeUnknownAction {
		t.Errorf("Expected UNKNOWN_ACTION, got %+v", resp.Error)
	}
	if resp.Payload != nil {
		t.Errorf("Expected no payload on error, got %v", resp.Payload)
	}
	if resp.ID != "1" || resp.Action != "nonsense.action" {
		t.Errorf("Error response lost correlation: %+v", resp)
	}
}

func TestDispatcherMissingField(t *testing.T) {
	d, h, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("2", ActionRoomsList, nil))
	if resp.Error == nil || resp.Error.Code != proto.CodeInvalidRequest {
		t.Errorf("Expected INVALID_REQUEST, got %+v", resp.Error)
	}

	// The provider must not have been touched: missing fields fail fast.
	resp = d.Handle(context.Background(), request("3", ActionSceneExecute, proto.Payload{}))
	if resp.Error == nil || resp.Error.Code != proto.CodeInvalidRequest {
		t.Errorf("Expected INVALID_REQUEST, got %+v", resp.Error)
	}
	if len(h.ExecutedScenes()) != 0 {
		t.Error("Provider called despite missing required field")
	}
}

func TestDispatcherRoomsListHomeNotFound(t *testing.T) {
	d, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("2", ActionRoomsList, proto.Payload{"homeId": "missing"}))
	if resp.ID != "2" || resp.Action != ActionRoomsList {
		t.Errorf("Error response lost correlation: %+v", resp)
	}
	if resp.Error == nil || resp.Error.Code != proto.CodeHomeNotFound {
		t.Errorf("Expected HOME_NOT_FOUND, got %+v", resp.Error)
	}
	if resp.Error != nil && resp.Error.Message == "" {
		t.Error("Expected a human-readable error message")
	}
}

func TestDispatcherSetCharacteristic(t *testing.T) {
	d, _, rec := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", ActionCharacteristicSet, proto.Payload{
		"accessoryId":        "A",
		"characteristicType": hub.CharPowerState,
		"value":              true,
	}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if resp.ID != "1" || resp.Action != ActionCharacteristicSet {
		t.Errorf("Response lost correlation: %+v", resp)
	}
	want := proto.Payload{
		"success":            true,
		"accessoryId":        "A",
		"characteristicType": hub.CharPowerState,
		"value":              true,
	}
	for k, v := range want {
		if resp.Payload[k] != v {
			t.Errorf("Payload[%s]: expected %v, got %v", k, v, resp.Payload[k])
		}
	}

	// A self-originated event tells other listeners about the write.
	if len(rec.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(rec.events))
	}
	ev := rec.events[0]
	if ev.Type != proto.TypeEvent || ev.Action != EventCharacteristicUpdated {
		t.Errorf("Unexpected event envelope: %+v", ev)
	}
	if ev.Payload["accessoryId"] != "A" || ev.Payload["value"] != true {
		t.Errorf("Unexpected event payload: %v", ev.Payload)
	}
	if ev.ID != "" {
		t.Errorf("Events must not carry a correlation id, got %q", ev.ID)
	}
}

func TestDispatcherSetCharacteristicNotWritable(t *testing.T) {
	d, h, rec := newTestDispatcher()
	h.AddAccessory(hub.Accessory{
		ID: "sensor", Name: "Sensor", HomeID: "h1", Reachable: true,
		Services: []hub.Service{{
			ID: "sensor-temp", Type: "sensor", Name: "Temp",
			Characteristics: []hub.Characteristic{
				{Type: hub.CharCurrentTemp, Format: hub.FormatFloat, Value: 20.0, Writable: false},
			},
		}},
	})

	resp := d.Handle(context.Background(), request("1", ActionCharacteristicSet, proto.Payload{
		"accessoryId":        "sensor",
		"characteristicType": hub.CharCurrentTemp,
		"value":              25.0,
	}))
	if resp.Error == nil || resp.Error.Code != proto.CodeCharacteristicNotWritable {
		t.Errorf("Expected CHARACTERISTIC_NOT_WRITABLE, got %+v", resp.Error)
	}
	if len(rec.events) != 0 {
		t.Error("No event should be emitted for a failed write")
	}
}

func TestDispatcherSetCharacteristicErrors(t *testing.T) {
	d, _, _ := newTestDispatcher()

	cases := []struct {
		name    string
		payload proto.Payload
		code    string
	}{
		{"unknown accessory", proto.Payload{"accessoryId": "nope", "characteristicType": hub.CharPowerState, "value": true}, proto.CodeAccessoryNotFound},
		{"unknown characteristic", proto.Payload{"accessoryId": "A", "characteristicType": "no-such-type", "value": true}, proto.CodeCharacteristicNotFound},
		{"bad value", proto.Payload{"accessoryId": "A", "characteristicType": hub.CharPowerState, "value": "banana"}, proto.CodeInvalidValue},
		{"missing value", proto.Payload{"accessoryId": "A", "characteristicType": hub.CharPowerState}, proto.CodeInvalidRequest},
	}
	for _, tc := range cases {
		resp := d.Handle(context.Background(), request("1", ActionCharacteristicSet, tc.payload))
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Errorf("%s: expected %s, got %+v", tc.name, tc.code, resp.Error)
		}
	}
}

func TestDispatcherGroupSetAggregates(t *testing.T) {
	d, h, _ := newTestDispatcher()
	h.SetWriteHook(func(accessoryID, characteristicType string, value any) error {
		if accessoryID == "B" {
			return fmt.Errorf("simulated fault")
		}
		return nil
	})

	resp := d.Handle(context.Background(), request("1", ActionServiceGroupSet, proto.Payload{
		"groupId":            "g1",
		"characteristicType": hub.CharPowerState,
		"value":              true,
	}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if resp.Payload["affectedCount"] != int64(2) {
		t.Errorf("Expected affectedCount 2, got %v", resp.Payload["affectedCount"])
	}
	if resp.Payload["success"] != true {
		t.Errorf("Expected success true, got %v", resp.Payload["success"])
	}
}

func TestDispatcherGroupSetAllFail(t *testing.T) {
	d, h, _ := newTestDispatcher()
	h.SetWriteHook(func(accessoryID, characteristicType string, value any) error {
		return fmt.Errorf("simulated fault")
	})

	resp := d.Handle(context.Background(), request("1", ActionServiceGroupSet, proto.Payload{
		"groupId":            "g1",
		"characteristicType": hub.CharPowerState,
		"value":              true,
	}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if resp.Payload["affectedCount"] != int64(0) || resp.Payload["success"] != false {
		t.Errorf("Expected zero affected and success false, got %v", resp.Payload)
	}
}

func TestDispatcherAccessoriesListElidesValues(t *testing.T) {
	d, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", ActionAccessoriesList, proto.Payload{"homeId": "h1"}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	accessories, ok := resp.Payload["accessories"].([]any)
	if !ok || len(accessories) != 3 {
		t.Fatalf("Expected 3 accessories, got %v", resp.Payload["accessories"])
	}
	first, _ := accessories[0].(map[string]any)
	services, _ := first["services"].([]any)
	svc, _ := services[0].(map[string]any)
	chars, _ := svc["characteristics"].([]any)
	c, _ := chars[0].(map[string]any)
	if _, present := c["value"]; present {
		t.Errorf("Expected value elided in bulk listing, got %v", c["value"])
	}
}

func TestDispatcherAccessoryGetRefreshes(t *testing.T) {
	d, h, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", ActionAccessoryGet, proto.Payload{"accessoryId": "A"}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if h.RefreshCount("A") != 1 {
		t.Errorf("Expected one refresh before detail fetch, got %d", h.RefreshCount("A"))
	}
	acc, ok := resp.Payload["accessory"].(map[string]any)
	if !ok || acc["id"] != "A" {
		t.Fatalf("Unexpected accessory payload: %v", resp.Payload["accessory"])
	}
	services, _ := acc["services"].([]any)
	svc, _ := services[0].(map[string]any)
	chars, _ := svc["characteristics"].([]any)
	c, _ := chars[1].(map[string]any)
	if c["value"] != int64(50) {
		t.Errorf("Expected live value 50 in detail, got %v (%T)", c["value"], c["value"])
	}

	resp = d.Handle(context.Background(), request("2", ActionAccessoryGet, proto.Payload{"accessoryId": "nope"}))
	if resp.Error == nil || resp.Error.Code != proto.CodeAccessoryNotFound {
		t.Errorf("Expected ACCESSORY_NOT_FOUND, got %+v", resp.Error)
	}
}

func TestDispatcherCharacteristicGet(t *testing.T) {
	d, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", ActionCharacteristicGet, proto.Payload{
		"accessoryId":        "A",
		"characteristicType": hub.CharBrightness,
	}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if resp.Payload["value"] != int64(50) {
		t.Errorf("Expected value 50, got %v", resp.Payload["value"])
	}
}

func TestDispatcherScenes(t *testing.T) {
	d, h, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", ActionScenesList, proto.Payload{"homeId": "h1"}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	scenes, ok := resp.Payload["scenes"].([]any)
	if !ok || len(scenes) != 1 {
		t.Fatalf("Expected one scene, got %v", resp.Payload["scenes"])
	}

	resp = d.Handle(context.Background(), request("2", ActionSceneExecute, proto.Payload{"sceneId": "s1"}))
	if resp.Error != nil || resp.Payload["success"] != true {
		t.Fatalf("Expected successful execute, got %+v", resp)
	}
	if got := h.ExecutedScenes(); len(got) != 1 || got[0] != "s1" {
		t.Errorf("Expected scene s1 executed, got %v", got)
	}

	resp = d.Handle(context.Background(), request("3", ActionSceneExecute, proto.Payload{"sceneId": "missing"}))
	if resp.Error == nil || resp.Error.Code != proto.CodeSceneNotFound {
		t.Errorf("Expected SCENE_NOT_FOUND, got %+v", resp.Error)
	}
}

func TestDispatcherZonesAndGroupsList(t *testing.T) {
	d, _, _ := newTestDispatcher()

	resp := d.Handle(context.Background(), request("1", ActionZonesList, proto.Payload{"homeId": "h1"}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if zones, ok := resp.Payload["zones"].([]any); !ok || len(zones) != 1 {
		t.Errorf("Expected one zone, got %v", resp.Payload["zones"])
	}

	resp = d.Handle(context.Background(), request("2", ActionServiceGroupsList, proto.Payload{"homeId": "h1"}))
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	if groups, ok := resp.Payload["serviceGroups"].([]any); !ok || len(groups) != 1 {
		t.Errorf("Expected one group, got %v", resp.Payload["serviceGroups"])
	}
}
