package proto

// Protocol error codes surfaced in error.code on failed responses.
const (
	CodeInvalidRequest            = "INVALID_REQUEST"
	CodeUnknownAction             = "UNKNOWN_ACTION"
	CodeHomeNotFound              = "HOME_NOT_FOUND"
	CodeRoomNotFound              = "ROOM_NOT_FOUND"
	CodeAccessoryNotFound         = "ACCESSORY_NOT_FOUND"
	CodeSceneNotFound             = "SCENE_NOT_FOUND"
	CodeCharacteristicNotFound    = "CHARACTERISTIC_NOT_FOUND"
	CodeCharacteristicNotWritable = "CHARACTERISTIC_NOT_WRITABLE"
	CodeAccessoryUnreachable      = "ACCESSORY_UNREACHABLE"
	CodeInvalidValue              = "INVALID_VALUE"
	CodeHomeKitError              = "HOMEKIT_ERROR"
	CodeInternalError             = "INTERNAL_ERROR"
)

// ErrorInfo is the error object attached to failed responses.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
