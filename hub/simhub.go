package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
)

// Layout is the JSON seed format for a SimHub, used by the demo binary and
// tests to stand up a device graph without real hardware.
type Layout struct {
	Homes       []Home         `json:"homes"`
	Rooms       []Room         `json:"rooms"`
	Zones       []Zone         `json:"zones"`
	Groups      []ServiceGroup `json:"groups"`
	Accessories []Accessory    `json:"accessories"`
	Scenes      []Scene        `json:"scenes"`
}

// SimHub is an in-memory Provider. It backs the demo binary and the test
// suites; a production deployment swaps in a Provider bound to the real
// platform home graph.
type SimHub struct {
	mu          sync.RWMutex
	homes       []Home
	rooms       []Room
	zones       []Zone
	groups      []ServiceGroup
	scenes      []Scene
	accessories map[string]*Accessory
	order       []string // accessory ids in insertion order

	handlers map[string]ChangeHandler

	// writeHook, when set, runs before every characteristic write and can
	// veto it. Used to inject per-member failures.
	writeHook func(accessoryID, characteristicType string, value any) error

	refreshed      map[string]int
	executedScenes []string
}

func NewSimHub() *SimHub {
	return &SimHub{
		accessories: make(map[string]*Accessory),
		handlers:    make(map[string]ChangeHandler),
		refreshed:   make(map[string]int),
	}
}

// NewSimHubFromLayout seeds a SimHub from a layout value.
func NewSimHubFromLayout(layout Layout) *SimHub {
	h := NewSimHub()
	h.homes = layout.Homes
	h.rooms = layout.Rooms
	h.zones = layout.Zones
	h.groups = layout.Groups
	h.scenes = layout.Scenes
	for i := range layout.Accessories {
		a := layout.Accessories[i]
		h.accessories[a.ID] = &a
		h.order = append(h.order, a.ID)
	}
	return h
}

// LoadLayout reads a layout JSON file and builds a SimHub from it.
func LoadLayout(path string) (*SimHub, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read layout: %w", err)
	}
	var layout Layout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("parse layout %s: %w", path, err)
	}
	return NewSimHubFromLayout(layout), nil
}

func (h *SimHub) ListHomes(ctx context.Context) ([]Home, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Home(nil), h.homes...), nil
}

func (h *SimHub) hasHome(id string) bool {
	for _, home := range h.homes {
		if home.ID == id {
			return true
		}
	}
	return false
}

func (h *SimHub) ListRooms(ctx context.Context, homeID string) ([]Room, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasHome(homeID) {
		return nil, fmt.Errorf("home %q: %w", homeID, ErrHomeNotFound)
	}
	rooms := make([]Room, 0)
	for _, r := range h.rooms {
		if r.HomeID == homeID {
			rooms = append(rooms, r)
		}
	}
	return rooms, nil
}

func (h *SimHub) ListZones(ctx context.Context, homeID string) ([]Zone, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasHome(homeID) {
		return nil, fmt.Errorf("home %q: %w", homeID, ErrHomeNotFound)
	}
	zones := make([]Zone, 0)
	for _, z := range h.zones {
		if z.HomeID == homeID {
			zones = append(zones, z)
		}
	}
	return zones, nil
}

func (h *SimHub) ListServiceGroups(ctx context.Context, homeID string) ([]ServiceGroup, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasHome(homeID) {
		return nil, fmt.Errorf("home %q: %w", homeID, ErrHomeNotFound)
	}
	groups := make([]ServiceGroup, 0)
	for _, g := range h.groups {
		if g.HomeID == homeID {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

func (h *SimHub) SetServiceGroupCharacteristic(ctx context.Context, homeID, groupID, characteristicType string, value any) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var group *ServiceGroup
	for i := range h.groups {
		if h.groups[i].ID != groupID {
			continue
		}
		if homeID != "" && h.groups[i].HomeID != homeID {
			continue
		}
		group = &h.groups[i]
		break
	}
	if group == nil {
		return 0, fmt.Errorf("group %q: %w", groupID, ErrGroupNotFound)
	}

	affected := 0
	for _, ref := range group.Services {
		acc, ok := h.accessories[ref.AccessoryID]
		if !ok {
			slog.Warn("Group member accessory missing, skipping", "group", groupID, "accessory", ref.AccessoryID)
			continue
		}
		if err := h.writeLocked(acc, ref.ServiceID, characteristicType, value); err != nil {
			slog.Warn("Group member write failed, skipping", "group", groupID, "accessory", ref.AccessoryID, "error", err.Error())
			continue
		}
		affected++
	}
	return affected, nil
}

// writeLocked writes one characteristic on one service of acc. Caller holds
// the lock. serviceID may be empty to match any service.
func (h *SimHub) writeLocked(acc *Accessory, serviceID, characteristicType string, value any) error {
	if !acc.Reachable {
		return fmt.Errorf("accessory %q: %w", acc.ID, ErrUnreachable)
	}
	for si := range acc.Services {
		if serviceID != "" && acc.Services[si].ID != serviceID {
			continue
		}
		for ci := range acc.Services[si].Characteristics {
			c := &acc.Services[si].Characteristics[ci]
			if c.Type != characteristicType || !c.Writable {
				continue
			}
			coerced, err := CoerceValue(c, value)
			if err != nil {
				return err
			}
			if h.writeHook != nil {
				if err := h.writeHook(acc.ID, characteristicType, coerced); err != nil {
					return err
				}
			}
			c.Value = coerced
			return nil
		}
	}
	return fmt.Errorf("characteristic %q on %q: %w", characteristicType, acc.ID, ErrCharacteristicNotFound)
}

func (h *SimHub) ListAccessories(ctx context.Context, filter AccessoryFilter) ([]Accessory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Accessory, 0, len(h.order))
	for _, id := range h.order {
		acc := h.accessories[id]
		if filter.HomeID != "" && acc.HomeID != filter.HomeID {
			continue
		}
		if filter.RoomID != "" && acc.RoomID != filter.RoomID {
			continue
		}
		copied := copyAccessory(acc)
		if !filter.IncludeValues {
			// Values are elided for bulk listings; accessory.get fetches them.
			for si := range copied.Services {
				for ci := range copied.Services[si].Characteristics {
					copied.Services[si].Characteristics[ci].Value = nil
				}
			}
		}
		result = append(result, copied)
	}
	return result, nil
}

func (h *SimHub) GetAccessory(ctx context.Context, id string) (*Accessory, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	acc, ok := h.accessories[id]
	if !ok {
		return nil, fmt.Errorf("accessory %q: %w", id, ErrAccessoryNotFound)
	}
	copied := copyAccessory(acc)
	return &copied, nil
}

func (h *SimHub) RefreshAccessoryValues(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accessories[id]; !ok {
		return fmt.Errorf("accessory %q: %w", id, ErrAccessoryNotFound)
	}
	h.refreshed[id]++
	return nil
}

// RefreshCount reports how many times an accessory's values were refreshed.
func (h *SimHub) RefreshCount(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refreshed[id]
}

func (h *SimHub) ReadCharacteristic(ctx context.Context, accessoryID, characteristicType string) (any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	acc, ok := h.accessories[accessoryID]
	if !ok {
		return nil, fmt.Errorf("accessory %q: %w", accessoryID, ErrAccessoryNotFound)
	}
	c := acc.FindCharacteristic(characteristicType)
	if c == nil {
		return nil, fmt.Errorf("characteristic %q on %q: %w", characteristicType, accessoryID, ErrCharacteristicNotFound)
	}
	return c.Value, nil
}

func (h *SimHub) SetCharacteristic(ctx context.Context, accessoryID, characteristicType string, value any) (WriteResult, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	acc, ok := h.accessories[accessoryID]
	if !ok {
		return WriteResult{}, fmt.Errorf("accessory %q: %w", accessoryID, ErrAccessoryNotFound)
	}
	if !acc.Reachable {
		return WriteResult{}, fmt.Errorf("accessory %q: %w", accessoryID, ErrUnreachable)
	}
	c := acc.FindCharacteristic(characteristicType)
	if c == nil {
		return WriteResult{}, fmt.Errorf("characteristic %q on %q: %w", characteristicType, accessoryID, ErrCharacteristicNotFound)
	}
	if !c.Writable {
		return WriteResult{}, fmt.Errorf("characteristic %q on %q: %w", characteristicType, accessoryID, ErrNotWritable)
	}
	coerced, err := CoerceValue(c, value)
	if err != nil {
		return WriteResult{}, err
	}
	if h.writeHook != nil {
		if err := h.writeHook(accessoryID, characteristicType, coerced); err != nil {
			return WriteResult{}, err
		}
	}
	// Self-initiated writes do not fire the change handler; the engine
	// emits its own event for those.
	c.Value = coerced
	return WriteResult{Success: true, NewValue: coerced}, nil
}

func (h *SimHub) ListScenes(ctx context.Context, homeID string) ([]Scene, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasHome(homeID) {
		return nil, fmt.Errorf("home %q: %w", homeID, ErrHomeNotFound)
	}
	scenes := make([]Scene, 0)
	for _, s := range h.scenes {
		if s.HomeID == homeID {
			scenes = append(scenes, s)
		}
	}
	return scenes, nil
}

func (h *SimHub) ExecuteScene(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.scenes {
		if s.ID == id {
			h.executedScenes = append(h.executedScenes, id)
			return nil
		}
	}
	return fmt.Errorf("scene %q: %w", id, ErrSceneNotFound)
}

// ExecutedScenes returns the ids of scenes executed so far.
func (h *SimHub) ExecutedScenes() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.executedScenes...)
}

func (h *SimHub) AccessoryIDs(ctx context.Context) ([]string, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := append([]string(nil), h.order...)
	sort.Strings(ids)
	return ids, nil
}

func (h *SimHub) SubscribeChanges(accessoryID string, fn ChangeHandler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accessories[accessoryID]; !ok {
		return fmt.Errorf("accessory %q: %w", accessoryID, ErrAccessoryNotFound)
	}
	h.handlers[accessoryID] = fn
	return nil
}

func (h *SimHub) UnsubscribeChanges(accessoryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, accessoryID)
}

// SubscriberCount reports how many accessories currently have a change
// handler attached.
func (h *SimHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers)
}

// AddAccessory registers a new accessory at runtime, as when a device joins
// the hub after startup.
func (h *SimHub) AddAccessory(acc Accessory) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.accessories[acc.ID]; !ok {
		h.order = append(h.order, acc.ID)
	}
	h.accessories[acc.ID] = &acc
}

// SetWriteHook installs a hook that runs before every characteristic write.
// Returning an error from the hook fails that write.
func (h *SimHub) SetWriteHook(fn func(accessoryID, characteristicType string, value any) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeHook = fn
}

// UpdateCharacteristic mutates a characteristic as if the device itself
// changed state, firing the subscribed change handler asynchronously.
func (h *SimHub) UpdateCharacteristic(accessoryID, characteristicType string, value any) error {
	h.mu.Lock()
	acc, ok := h.accessories[accessoryID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("accessory %q: %w", accessoryID, ErrAccessoryNotFound)
	}
	c := acc.FindCharacteristic(characteristicType)
	if c == nil {
		h.mu.Unlock()
		return fmt.Errorf("characteristic %q on %q: %w", characteristicType, accessoryID, ErrCharacteristicNotFound)
	}
	c.Value = value
	handler := h.handlers[accessoryID]
	h.mu.Unlock()

	if handler != nil {
		go handler(accessoryID, characteristicType, value)
	}
	return nil
}

func copyAccessory(acc *Accessory) Accessory {
	copied := *acc
	copied.Services = make([]Service, len(acc.Services))
	for si, svc := range acc.Services {
		copiedSvc := svc
		copiedSvc.Characteristics = append([]Characteristic(nil), svc.Characteristics...)
		copied.Services[si] = copiedSvc
	}
	return copied
}
