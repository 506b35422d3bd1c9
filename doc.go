// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package pervasive is a container for Pervasive Displays e-paper drivers.
//
// The panel families share the capabilities defined in package epd; each
// family lives in its own package, see widemedium.
package pervasive
