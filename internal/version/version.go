// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package version

import (
	"runtime/debug"
	"sync"
)

// Version is stamped at build time:
// go build -ldflags="-X github.com/teradata-labs/liverl/internal/version.Version=vX.Y.Z"
var Version = "0.3.0"

// Get returns the build version, or "dev" when unset.
func Get() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

var revision = sync.OnceValue(func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	dirty := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
})

// Full returns the version with the VCS revision the binary was built from,
// e.g. "0.3.0 (1a2b3c4d5e6f)". The revision is omitted when unknown.
func Full() string {
	if rev := revision(); rev != "" {
		return Get() + " (" + rev + ")"
	}
	return Get()
}
