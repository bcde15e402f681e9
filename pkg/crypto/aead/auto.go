// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-protectedfs.
//
// go-protectedfs is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package aead

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Algorithm names
const (
	// AES128GCM is AES-128 in Galois/Counter Mode, the node cipher
	AES128GCM = "A128GCM"

	// BackendAES128GCM is the lowercase name reported by the CLI
	BackendAES128GCM = "aes128-gcm"
)

// HasAESNI returns true if the CPU has AES-NI (AES New Instructions) support.
//
// Supported architectures:
//   - amd64: Checks X86.HasAES
//   - arm64: Checks ARM64.HasAES
//   - Other architectures return false
func HasAESNI() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	default:
		return false
	}
}

// Acceleration describes how the node cipher runs on this CPU.
func Acceleration() string {
	if HasAESNI() {
		return "hardware"
	}
	return "software"
}
