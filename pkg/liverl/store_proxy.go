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
package liverl

import (
	"context"
	"fmt"
	"time"

	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// NoResourceWriteStore forwards every Store call to the wrapped store except
// UpdateResources, which returns a non-latest placeholder and writes nothing.
// Prompt search runs against it so candidate evaluation never touches the
// shared resources document.
type NoResourceWriteStore struct {
	trainingstore.Store
}

// NewNoResourceWriteStore wraps inner.
func NewNoResourceWriteStore(inner trainingstore.Store) *NoResourceWriteStore {
	return &NoResourceWriteStore{Store: inner}
}

// UpdateResources echoes resources as version latest+1 with IsLatest false.
func (s *NoResourceWriteStore) UpdateResources(ctx context.Context, resources map[string]any) (*trainingstore.ResourcesUpdate, error) {
	latest, err := s.Store.GetLatestResources(ctx)
	if err != nil {
		return nil, err
	}
	var version int64 = 1
	if latest != nil {
		version = latest.Version + 1
	}
	echo := make(map[string]any, len(resources))
	for k, v := range resources {
		echo[k] = v
	}
	return &trainingstore.ResourcesUpdate{
		ID:        fmt.Sprintf("live-apo-shadow-%d", version),
		Version:   version,
		Resources: echo,
		CreatedAt: time.Now().UTC(),
		IsLatest:  false,
	}, nil
}

var _ trainingstore.Store = (*NoResourceWriteStore)(nil)
