// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package errs collects the sentinel errors behind patch-hub's
// not-found handling. Callers wrap these with fmt.Errorf("...: %w", err)
// to build the context chain, and never swallow them except at the
// documented cold-start Load() path.
package errs

import "errors"

// ErrNotFound means the archive has no such list or message, or a
// cache's persisted file doesn't exist yet (the expected cold-start
// case for Load()).
var ErrNotFound = errors.New("patch-hub: not found")
