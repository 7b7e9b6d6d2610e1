// Package winlog reads the classic Windows Event Log (System, Application,
// Security, ...) through advapi32. On other hosts the kind is registered
// but opening it fails with eventlog.ErrUnsupported.
package winlog
