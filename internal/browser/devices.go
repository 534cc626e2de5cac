package browser

import "sort"

// DefaultDeviceID is the desktop device used when a job does not ask for one.
const DefaultDeviceID = "default"

// Device describes an emulated device.
type Device struct {
	ID        string
	Width     int
	Height    int
	Scale     float64
	Mobile    bool
	Touch     bool
	UserAgent string
}

var devices = map[string]Device{
	DefaultDeviceID: {ID: DefaultDeviceID, Width: 1280, Height: 720, Scale: 1},
	"Desktop Chrome HiDPI": {
		ID: "Desktop Chrome HiDPI", Width: 1280, Height: 720, Scale: 2,
	},
	"iPhone 12": {
		ID: "iPhone 12", Width: 390, Height: 664, Scale: 3, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 14_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/14.0.3 Mobile/15E148 Safari/604.1",
	},
	"iPhone SE": {
		ID: "iPhone SE", Width: 320, Height: 568, Scale: 2, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 10_3_1 like Mac OS X) AppleWebKit/603.1.30 (KHTML, like Gecko) Version/10.0 Mobile/14E304 Safari/602.1",
	},
	"iPad Mini": {
		ID: "iPad Mini", Width: 768, Height: 1024, Scale: 2, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (iPad; CPU OS 12_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.0 Mobile/15E148 Safari/604.1",
	},
	"Pixel 5": {
		ID: "Pixel 5", Width: 393, Height: 727, Scale: 2.75, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (Linux; Android 11; Pixel 5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	},
	"Galaxy S9+": {
		ID: "Galaxy S9+", Width: 320, Height: 658, Scale: 4.5, Mobile: true, Touch: true,
		UserAgent: "Mozilla/5.0 (Linux; Android 8.0.0; SM-G965U Build/R16NW) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	},
}

// LookupDevice returns the device with the given id.
func LookupDevice(id string) (Device, bool) {
	d, ok := devices[id]
	return d, ok
}

// DeviceIDs returns the recognized device ids, sorted.
func DeviceIDs() []string {
	ids := make([]string, 0, len(devices))
	for id := range devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
