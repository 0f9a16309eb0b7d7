// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package sim implements a simulated service info module for FDO device
// onboarding.
//
// The module mimics the device side of the fdo.download and fdo.command
// service info exchanges without performing any file I/O, process execution,
// or cryptography. Transferred payloads are counted rather than written and
// command execution is delegated to an optional hook, making the module
// suitable for exercising a TO2 implementation end to end.
//
// The core type is [Module], a per-round lifecycle controller driven by a
// host protocol engine: Start, then any number of HasMoreServiceInfo,
// IsMoreServiceInfo, and ServiceInfoCount queries, then NextServiceInfo to
// encode the queued message, with End and Failure as the terminal paths. Any
// failure at any step releases all held buffers and resets module state to a
// clean baseline before the host is signaled.
//
// [Device] and [OwnerInstructions] adapt the controller to the
// serviceinfo.DeviceModule and serviceinfo.OwnerModule interfaces so the
// simulated exchange can be registered with a go-fdo client or owner
// service.
package sim
