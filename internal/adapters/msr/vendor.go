package msr

import (
	"fmt"

	"github.com/prometheus/procfs"
)

// DetectVendor reads the vendor of the first CPU listed in cpuinfo below
// procRoot (usually /proc).
func DetectVendor(procRoot string) (Vendor, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return VendorUnknown, err
	}
	cpus, err := fs.CPUInfo()
	if err != nil {
		return VendorUnknown, fmt.Errorf("read cpuinfo: %w", err)
	}
	if len(cpus) == 0 {
		return VendorUnknown, fmt.Errorf("cpuinfo lists no processors")
	}
	return VendorFromID(cpus[0].VendorID), nil
}
