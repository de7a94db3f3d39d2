// Copyright 2025 The Civic Educator Authors
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

package config

// Section is implemented by every configuration section so the root
// Config can cascade defaults and validation uniformly.
type Section interface {
	// SetDefaults sets default values for any unset fields.
	SetDefaults()

	// Validate checks if the configuration is valid.
	Validate() error
}
