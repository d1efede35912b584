package facts

import (
	"runtime"
	"strings"

	"github.com/zcalusic/sysinfo"
)

var sysInfo = func() sysinfo.SysInfo {
	var si sysinfo.SysInfo
	si.GetSysInfo()
	return si
}

var vendorFamilies = map[string]string{
	"ubuntu":     "Debian",
	"debian":     "Debian",
	"centos":     "RedHat",
	"rhel":       "RedHat",
	"redhat":     "RedHat",
	"rockylinux": "RedHat",
	"rocky":      "RedHat",
	"almalinux":  "RedHat",
	"fedora":     "RedHat",
	"opensuse":   "Suse",
	"sles":       "Suse",
}

var vendorNames = map[string]string{
	"ubuntu":     "Ubuntu",
	"debian":     "Debian",
	"centos":     "CentOS",
	"rhel":       "RedHat",
	"redhat":     "RedHat",
	"rockylinux": "Rocky",
	"rocky":      "Rocky",
	"almalinux":  "AlmaLinux",
	"fedora":     "Fedora",
	"opensuse":   "OpenSuSE",
	"sles":       "SLES",
}

// Local collects facts for the running host.
func Local() Fixture {
	si := sysInfo()

	vendor := strings.ToLower(strings.TrimSpace(si.OS.Vendor))
	name := vendorNames[vendor]
	if name == "" {
		name = si.OS.Vendor
	}
	family := vendorFamilies[vendor]
	if family == "" {
		family = name
	}
	full := strings.TrimSpace(si.OS.Release)
	if full == "" {
		full = strings.TrimSpace(si.OS.Version)
	}
	major := majorRelease(family, full)

	hardware := si.Kernel.Architecture
	if hardware == "" {
		hardware = si.OS.Architecture
	}
	if hardware == "" {
		hardware = runtime.GOARCH
	}

	f := Facts{
		"os": map[string]any{
			"name":         name,
			"family":       family,
			"hardware":     hardware,
			"architecture": si.OS.Architecture,
			"release": map[string]any{
				"full":  full,
				"major": major,
			},
		},
		"kernel":        kernelName(),
		"kernelrelease": si.Kernel.Release,
		"networking": map[string]any{
			"hostname": si.Node.Hostname,
		},
		"processors": map[string]any{
			"count": int(si.CPU.Threads),
		},
		"memory": map[string]any{
			"system": map[string]any{
				"total_mb": int(si.Memory.Size),
			},
		},
	}
	f = f.Normalize()
	fx := Fixture{Name: FixtureName(f), Source: "local", Facts: f}
	if fx.Name == "" {
		fx.Name = "local"
	}
	return fx
}

// majorRelease picks the release component rspec-style fact sets use as
// major: the whole "YY.MM" for Ubuntu, the first dotted part elsewhere.
func majorRelease(family, full string) string {
	if full == "" {
		return ""
	}
	parts := strings.Split(full, ".")
	if family == "Debian" && len(parts) >= 2 && len(parts[0]) == 2 {
		return parts[0] + "." + parts[1]
	}
	return parts[0]
}

func kernelName() string {
	switch runtime.GOOS {
	case "linux":
		return "Linux"
	case "darwin":
		return "Darwin"
	case "windows":
		return "windows"
	default:
		return runtime.GOOS
	}
}
