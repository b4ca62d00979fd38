package hub

import (
	"context"
	"errors"
)

// Typed errors returned by Provider implementations. The relay dispatcher
// maps these onto the fixed protocol error codes.
var (
	ErrHomeNotFound           = errors.New("home not found")
	ErrRoomNotFound           = errors.New("room not found")
	ErrZoneNotFound           = errors.New("zone not found")
	ErrGroupNotFound          = errors.New("service group not found")
	ErrAccessoryNotFound      = errors.New("accessory not found")
	ErrSceneNotFound          = errors.New("scene not found")
	ErrCharacteristicNotFound = errors.New("characteristic not found")
	ErrNotWritable            = errors.New("characteristic not writable")
	ErrUnreachable            = errors.New("accessory unreachable")
	ErrInvalidValue           = errors.New("invalid value")
)

// ChangeHandler receives an asynchronous characteristic change notification.
// Implementations must not block; delivery happens off the request path.
type ChangeHandler func(accessoryID, characteristicType string, value any)

// Provider abstracts the smart-home hub's device graph and I/O. The relay
// engine consumes this interface and never talks to devices itself.
type Provider interface {
	ListHomes(ctx context.Context) ([]Home, error)
	ListRooms(ctx context.Context, homeID string) ([]Room, error)
	ListZones(ctx context.Context, homeID string) ([]Zone, error)
	ListServiceGroups(ctx context.Context, homeID string) ([]ServiceGroup, error)

	// SetServiceGroupCharacteristic writes value to every writable matching
	// characteristic across the group's member services and returns how many
	// writes took effect. Individual member failures are skipped.
	SetServiceGroupCharacteristic(ctx context.Context, homeID, groupID, characteristicType string, value any) (int, error)

	ListAccessories(ctx context.Context, filter AccessoryFilter) ([]Accessory, error)
	GetAccessory(ctx context.Context, id string) (*Accessory, error)

	// RefreshAccessoryValues re-reads live characteristic values for the
	// accessory from the underlying devices.
	RefreshAccessoryValues(ctx context.Context, id string) error

	ReadCharacteristic(ctx context.Context, accessoryID, characteristicType string) (any, error)
	SetCharacteristic(ctx context.Context, accessoryID, characteristicType string, value any) (WriteResult, error)

	ListScenes(ctx context.Context, homeID string) ([]Scene, error)
	ExecuteScene(ctx context.Context, id string) error

	// AccessoryIDs returns the ids of all accessories currently known to the
	// hub, for change-notification attachment.
	AccessoryIDs(ctx context.Context) ([]string, error)

	// SubscribeChanges registers a change handler for one accessory.
	// Subscribing the same accessory again replaces the handler.
	SubscribeChanges(accessoryID string, fn ChangeHandler) error
	UnsubscribeChanges(accessoryID string)
}
