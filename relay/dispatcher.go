package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hubcast/hubcast/hub"
	"github.com/hubcast/hubcast/proto"
)

// Action names accepted from the relay.
const (
	ActionHomesList         = "homes.list"
	ActionRoomsList         = "rooms.list"
	ActionZonesList         = "zones.list"
	ActionServiceGroupsList = "serviceGroups.list"
	ActionServiceGroupSet   = "serviceGroup.set"
	ActionAccessoriesList   = "accessories.list"
	ActionAccessoryGet      = "accessory.get"
	ActionCharacteristicGet = "characteristic.get"
	ActionCharacteristicSet = "characteristic.set"
	ActionScenesList        = "scenes.list"
	ActionSceneExecute      = "scene.execute"

	// EventCharacteristicUpdated is the action of pushed change events.
	EventCharacteristicUpdated = "characteristic.updated"
)

// Dispatcher routes inbound requests to the capability provider and shapes
// the results into responses. It is stateless between calls.
type Dispatcher struct {
	provider hub.Provider
	emit     func(proto.Message) // outbound path for self-originated events
}

func NewDispatcher(provider hub.Provider, emit func(proto.Message)) *Dispatcher {
	return &Dispatcher{provider: provider, emit: emit}
}

// Handle executes one request and always returns exactly one response
// correlated by the request's id, success or error.
func (d *Dispatcher) Handle(ctx context.Context, req proto.Message) proto.Message {
	payload, errInfo := d.dispatch(ctx, req.Action, req.Payload)
	if errInfo != nil {
		slog.Debug("Request failed", "id", req.ID, "action", req.Action, "code", errInfo.Code, "message", errInfo.Message)
		return proto.NewErrorResponse(req.ID, req.Action, errInfo.Code, errInfo.Message)
	}
	return proto.NewResponse(req.ID, req.Action, payload)
}

func (d *Dispatcher) dispatch(ctx context.Context, action string, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	switch action {
	case ActionHomesList:
		return d.listHomes(ctx)
	case ActionRoomsList:
		return d.listRooms(ctx, p)
	case ActionZonesList:
		return d.listZones(ctx, p)
	case ActionServiceGroupsList:
		return d.listServiceGroups(ctx, p)
	case ActionServiceGroupSet:
		return d.setServiceGroup(ctx, p)
	case ActionAccessoriesList:
		return d.listAccessories(ctx, p)
	case ActionAccessoryGet:
		return d.getAccessory(ctx, p)
	case ActionCharacteristicGet:
		return d.getCharacteristic(ctx, p)
	case ActionCharacteristicSet:
		return d.setCharacteristic(ctx, p)
	case ActionScenesList:
		return d.listScenes(ctx, p)
	case ActionSceneExecute:
		return d.executeScene(ctx, p)
	default:
		return nil, &proto.ErrorInfo{Code: proto.CodeUnknownAction, Message: "unknown action: " + action}
	}
}

func (d *Dispatcher) listHomes(ctx context.Context) (proto.Payload, *proto.ErrorInfo) {
	homes, err := d.provider.ListHomes(ctx)
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("homes", homes)
}

func (d *Dispatcher) listRooms(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	homeID, errInfo := requireString(p, "homeId")
	if errInfo != nil {
		return nil, errInfo
	}
	rooms, err := d.provider.ListRooms(ctx, homeID)
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("rooms", rooms)
}

func (d *Dispatcher) listZones(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	homeID, errInfo := requireString(p, "homeId")
	if errInfo != nil {
		return nil, errInfo
	}
	zones, err := d.provider.ListZones(ctx, homeID)
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("zones", zones)
}

func (d *Dispatcher) listServiceGroups(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	homeID, errInfo := requireString(p, "homeId")
	if errInfo != nil {
		return nil, errInfo
	}
	groups, err := d.provider.ListServiceGroups(ctx, homeID)
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("serviceGroups", groups)
}

func (d *Dispatcher) setServiceGroup(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	groupID, errInfo := requireString(p, "groupId")
	if errInfo != nil {
		return nil, errInfo
	}
	characteristicType, errInfo := requireString(p, "characteristicType")
	if errInfo != nil {
		return nil, errInfo
	}
	value, ok := p["value"]
	if !ok {
		return nil, missingField("value")
	}
	homeID, _ := p.String("homeId") // optional

	affected, err := d.provider.SetServiceGroupCharacteristic(ctx, homeID, groupID, characteristicType, value)
	if err != nil {
		return nil, mapHubError(err)
	}
	// Per-member failures are already skipped inside the provider; the
	// batch succeeds when anything took effect.
	return proto.Payload{
		"groupId":       groupID,
		"affectedCount": int64(affected),
		"success":       affected > 0,
	}, nil
}

func (d *Dispatcher) listAccessories(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	homeID, _ := p.String("homeId")
	roomID, _ := p.String("roomId")
	accessories, err := d.provider.ListAccessories(ctx, hub.AccessoryFilter{HomeID: homeID, RoomID: roomID})
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("accessories", accessories)
}

func (d *Dispatcher) getAccessory(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	accessoryID, errInfo := requireString(p, "accessoryId")
	if errInfo != nil {
		return nil, errInfo
	}
	if err := d.provider.RefreshAccessoryValues(ctx, accessoryID); err != nil {
		return nil, mapHubError(err)
	}
	acc, err := d.provider.GetAccessory(ctx, accessoryID)
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("accessory", acc)
}

func (d *Dispatcher) getCharacteristic(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	accessoryID, errInfo := requireString(p, "accessoryId")
	if errInfo != nil {
		return nil, errInfo
	}
	characteristicType, errInfo := requireString(p, "characteristicType")
	if errInfo != nil {
		return nil, errInfo
	}
	value, err := d.provider.ReadCharacteristic(ctx, accessoryID, characteristicType)
	if err != nil {
		return nil, mapHubError(err)
	}
	return proto.Payload{
		"accessoryId":        accessoryID,
		"characteristicType": characteristicType,
		"value":              proto.NormalizeValue(value),
	}, nil
}

func (d *Dispatcher) setCharacteristic(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	accessoryID, errInfo := requireString(p, "accessoryId")
	if errInfo != nil {
		return nil, errInfo
	}
	characteristicType, errInfo := requireString(p, "characteristicType")
	if errInfo != nil {
		return nil, errInfo
	}
	value, ok := p["value"]
	if !ok {
		return nil, missingField("value")
	}

	acc, err := d.provider.GetAccessory(ctx, accessoryID)
	if err != nil {
		return nil, mapHubError(err)
	}
	c := acc.FindCharacteristic(characteristicType)
	if c == nil {
		return nil, &proto.ErrorInfo{Code: proto.CodeCharacteristicNotFound, Message: "no characteristic " + characteristicType + " on accessory " + accessoryID}
	}
	if !c.Writable {
		return nil, &proto.ErrorInfo{Code: proto.CodeCharacteristicNotWritable, Message: "characteristic " + characteristicType + " is not writable"}
	}
	coerced, err := hub.CoerceValue(c, value)
	if err != nil {
		return nil, mapHubError(err)
	}

	result, err := d.provider.SetCharacteristic(ctx, accessoryID, characteristicType, coerced)
	if err != nil {
		return nil, mapHubError(err)
	}
	newValue := result.NewValue
	if newValue == nil {
		newValue = coerced
	}
	newValue = proto.NormalizeValue(newValue)

	// The hub does not fire its own change callback for writes we made
	// ourselves, so push an event here for any other remote listeners.
	if d.emit != nil {
		d.emit(proto.NewEvent(EventCharacteristicUpdated, proto.Payload{
			"accessoryId":        accessoryID,
			"characteristicType": characteristicType,
			"value":              newValue,
		}))
	}

	return proto.Payload{
		"success":            result.Success,
		"accessoryId":        accessoryID,
		"characteristicType": characteristicType,
		"value":              newValue,
	}, nil
}

func (d *Dispatcher) listScenes(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	homeID, errInfo := requireString(p, "homeId")
	if errInfo != nil {
		return nil, errInfo
	}
	scenes, err := d.provider.ListScenes(ctx, homeID)
	if err != nil {
		return nil, mapHubError(err)
	}
	return listPayload("scenes", scenes)
}

func (d *Dispatcher) executeScene(ctx context.Context, p proto.Payload) (proto.Payload, *proto.ErrorInfo) {
	sceneID, errInfo := requireString(p, "sceneId")
	if errInfo != nil {
		return nil, errInfo
	}
	if err := d.provider.ExecuteScene(ctx, sceneID); err != nil {
		return nil, mapHubError(err)
	}
	return proto.Payload{"success": true, "sceneId": sceneID}, nil
}

func requireString(p proto.Payload, key string) (string, *proto.ErrorInfo) {
	v, ok := p.String(key)
	if !ok || v == "" {
		return "", missingField(key)
	}
	return v, nil
}

func missingField(key string) *proto.ErrorInfo {
	return &proto.ErrorInfo{Code: proto.CodeInvalidRequest, Message: "missing required field: " + key}
}

// mapHubError converts provider errors to the fixed protocol code table.
func mapHubError(err error) *proto.ErrorInfo {
	code := proto.CodeHomeKitError
	switch {
	case errors.Is(err, hub.ErrHomeNotFound):
		code = proto.CodeHomeNotFound
	case errors.Is(err, hub.ErrRoomNotFound):
		code = proto.CodeRoomNotFound
	case errors.Is(err, hub.ErrAccessoryNotFound):
		code = proto.CodeAccessoryNotFound
	case errors.Is(err, hub.ErrSceneNotFound):
		code = proto.CodeSceneNotFound
	case errors.Is(err, hub.ErrCharacteristicNotFound):
		code = proto.CodeCharacteristicNotFound
	case errors.Is(err, hub.ErrNotWritable):
		code = proto.CodeCharacteristicNotWritable
	case errors.Is(err, hub.ErrUnreachable):
		code = proto.CodeAccessoryUnreachable
	case errors.Is(err, hub.ErrInvalidValue):
		code = proto.CodeInvalidValue
	case errors.Is(err, hub.ErrZoneNotFound), errors.Is(err, hub.ErrGroupNotFound):
		// The code table has no dedicated entries for these.
		code = proto.CodeHomeKitError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = proto.CodeInternalError
	}
	return &proto.ErrorInfo{Code: code, Message: err.Error()}
}

// listPayload wraps a model value under key, converted through JSON so that
// struct tags drive the wire shape and numbers land in the payload domain.
func listPayload(key string, v any) (proto.Payload, *proto.ErrorInfo) {
	converted, err := toPayloadValue(v)
	if err != nil {
		return nil, &proto.ErrorInfo{Code: proto.CodeInternalError, Message: err.Error()}
	}
	return proto.Payload{key: converted}, nil
}

func toPayloadValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return proto.NormalizeValue(raw), nil
}
