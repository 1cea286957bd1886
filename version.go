/*
 * MIT License
 * Copyright (c) 2023 Mitchell Hashimoto
 * Copyright (c) 2026 Crrow
 */

package libxevgo

// Version is the semantic version of the SDK.
// For release builds, run: just version-update
// This will update the version based on the latest git tag.
const Version = "0.0.1"
