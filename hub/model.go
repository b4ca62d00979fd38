package hub

// Characteristic value formats.
const (
	FormatBool   = "bool"
	FormatInt    = "int"
	FormatFloat  = "float"
	FormatString = "string"
)

// Well-known characteristic types.
const (
	CharPowerState   = "power-state"
	CharBrightness   = "brightness"
	CharHue          = "hue"
	CharSaturation   = "saturation"
	CharTargetTemp   = "target-temperature"
	CharCurrentTemp  = "current-temperature"
	CharLockState    = "lock-state"
	CharPositionPct  = "position-percentage"
	CharMotionSensed = "motion-detected"
)

type Home struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrimary bool   `json:"isPrimary"`
}

type Room struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	HomeID string `json:"homeId"`
}

type Zone struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	HomeID  string   `json:"homeId"`
	RoomIDs []string `json:"roomIds,omitempty"`
}

// ServiceRef points at one member service of a service group.
type ServiceRef struct {
	AccessoryID string `json:"accessoryId"`
	ServiceID   string `json:"serviceId"`
}

type ServiceGroup struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	HomeID   string       `json:"homeId"`
	Services []ServiceRef `json:"services"`
}

type Scene struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	HomeID string `json:"homeId"`
}

type Characteristic struct {
	Type      string   `json:"type"`
	Format    string   `json:"format"`
	Value     any      `json:"value,omitempty"`
	Writable  bool     `json:"writable"`
	MinValue  *float64 `json:"minValue,omitempty"`
	MaxValue  *float64 `json:"maxValue,omitempty"`
	StepValue *float64 `json:"stepValue,omitempty"`
	Unit      string   `json:"unit,omitempty"`
}

type Service struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Name            string           `json:"name"`
	Characteristics []Characteristic `json:"characteristics"`
}

type Accessory struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	HomeID       string    `json:"homeId"`
	RoomID       string    `json:"roomId,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Model        string    `json:"model,omitempty"`
	Firmware     string    `json:"firmware,omitempty"`
	Category     string    `json:"category,omitempty"`
	Reachable    bool      `json:"reachable"`
	Services     []Service `json:"services"`
}

// WriteResult is the outcome of a characteristic write.
type WriteResult struct {
	Success  bool `json:"success"`
	NewValue any  `json:"newValue,omitempty"`
}

// AccessoryFilter scopes an accessory listing. Zero value means all
// accessories with characteristic values elided.
type AccessoryFilter struct {
	HomeID        string
	RoomID        string
	IncludeValues bool
}

// FindCharacteristic locates a characteristic by type across the
// accessory's services. Returns nil when the accessory has no
// characteristic of that type.
func (a *Accessory) FindCharacteristic(characteristicType string) *Characteristic {
	for si := range a.Services {
		for ci := range a.Services[si].Characteristics {
			if a.Services[si].Characteristics[ci].Type == characteristicType {
				return &a.Services[si].Characteristics[ci]
			}
		}
	}
	return nil
}
