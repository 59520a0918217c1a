package device

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID keys the protected machine ID so it can't be correlated with
// other applications on the same machine.
const AppID = "pinvault"

// DeviceID retrieves the ID identifying this device, falling back to the
// hostname if the machine ID is unavailable.
func DeviceID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id
	}
	glog.Warningf("machine id: %v", err)
	if host, herr := os.Hostname(); herr == nil && host != "" {
		return host
	}
	return AppID
}
