// Copyright 2025 Mysticetus
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package credsfile

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	// GoogleAppCredsEnvVar points at an explicit credentials file.
	GoogleAppCredsEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"

	// CloudSDKConfigDirEnvVar overrides the gcloud configuration directory.
	CloudSDKConfigDirEnvVar = "CLOUDSDK_CONFIG"

	adcFilename = "application_default_credentials.json"
)

// GetFileNameFromEnv returns the override provided or the value of
// GOOGLE_APPLICATION_CREDENTIALS.
func GetFileNameFromEnv(override string) string {
	if override != "" {
		return override
	}
	return os.Getenv(GoogleAppCredsEnvVar)
}

// GetWellKnownFile returns the path to the application-default credentials
// file gcloud maintains, honoring CLOUDSDK_CONFIG.
func GetWellKnownFile() string {
	return filepath.Join(SDKConfigDir(), adcFilename)
}

// SDKConfigDir returns the gcloud configuration directory: CLOUDSDK_CONFIG
// if set, otherwise the platform default under the user's home.
func SDKConfigDir() string {
	if dir := os.Getenv(CloudSDKConfigDirEnvVar); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "gcloud")
	}
	return filepath.Join(guessUnixHomeDir(), ".config", "gcloud")
}

func guessUnixHomeDir() string {
	// Prefer $HOME over user.Current due to glibc bug: golang.org/issue/13470
	if v := os.Getenv("HOME"); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return ""
}
