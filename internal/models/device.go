package models

import (
	"strings"

	"github.com/google/uuid"
)

// Platform is the OS the engine is running on
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// ParsePlatform normalizes and validates a platform name
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(strings.TrimSpace(strings.ToLower(s))); p {
	case PlatformIOS, PlatformAndroid, PlatformWeb:
		return p, nil
	}
	return "", ErrInvalidPlatform
}

// RequiresRegistration reports whether the backend must issue the device id.
// Web has no push registration, so it uses a local pseudo id instead.
func (p Platform) RequiresRegistration() bool {
	return p != PlatformWeb
}

// RegisterDeviceRequest is the request body for POST /api/auth/device
type RegisterDeviceRequest struct {
	Platform   Platform `json:"platform"`
	DeviceName string   `json:"deviceName"`
}

// RegisteredDevice is the data of a device registration response
type RegisteredDevice struct {
	ID string `json:"id"`
}

// RegisterDeviceResponse for POST /api/auth/device
type RegisterDeviceResponse struct {
	Data *RegisteredDevice `json:"data"`
}

// NewRegisterDeviceRequest validates the inputs of a registration call
func NewRegisterDeviceRequest(platform Platform, deviceName string) (*RegisterDeviceRequest, error) {
	deviceName = strings.TrimSpace(deviceName)
	if deviceName == "" {
		return nil, ErrEmptyDeviceName
	}
	if !platform.RequiresRegistration() {
		return nil, ErrInvalidPlatform
	}
	return &RegisterDeviceRequest{Platform: platform, DeviceName: deviceName}, nil
}

// NewWebDeviceID returns a pseudo device id for platforms without registration
func NewWebDeviceID() string {
	return "web-" + uuid.New().String()
}

// Device errors
var (
	ErrEmptyDeviceName = DeviceError{"device name cannot be empty"}
	ErrInvalidPlatform = DeviceError{"platform must be 'ios', 'android' or 'web'"}
)

type DeviceError struct {
	Message string
}

func (e DeviceError) Error() string {
	return e.Message
}
