// SPDX-License-Identifier: Apache-2.0

package version

// Version information set by build flags
var (
	Version = "dev"
	Commit  = "unknown"
)
