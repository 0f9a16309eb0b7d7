// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/fido-device-onboard/go-fdo/cbor"
	"github.com/fido-device-onboard/go-fdo/serviceinfo"
)

// Device adapts Module to the go-fdo service info engine and should be
// registered to the ModuleName module. It simulates the device side of a
// file transfer and command execution exchange: payload bytes are counted,
// not written, and execution is delegated to the Exec hook instead of a
// process.
type Device struct {
	// Exec optionally supplies the exit code for a simulated execution.
	// The default reports 0.
	Exec func(command string, args []string) int

	// Module is the lifecycle controller driven by this adapter. Its
	// Cleanup hook and buffer sizing may be set before the first
	// Transition.
	Module Module

	// Message data
	name   string
	length int64
}

var _ serviceinfo.DeviceModule = (*Device)(nil)

// Transition implements serviceinfo.DeviceModule.
func (d *Device) Transition(active bool) error {
	if !active {
		d.name, d.length = "", 0
		return d.Module.Failure()
	}
	if d.Module.sess != nil {
		return nil
	}
	return d.Module.Start()
}

// Receive implements serviceinfo.DeviceModule.
func (d *Device) Receive(ctx context.Context, messageName string, messageBody io.Reader, respond func(string) io.Writer, yield func()) error {
	if err := d.receive(messageName, messageBody); err != nil {
		return d.Module.End(err)
	}
	return nil
}

func (d *Device) receive(messageName string, messageBody io.Reader) error {
	switch messageName {
	case "name":
		return cbor.NewDecoder(messageBody).Decode(&d.name)

	case "length":
		if err := cbor.NewDecoder(messageBody).Decode(&d.length); err != nil {
			return err
		}
		if d.length == 0 {
			// Nothing to transfer, the result is ready immediately
			return d.Module.QueueDownloadResult(0)
		}
		return nil

	case "data":
		var chunk []byte
		if err := cbor.NewDecoder(messageBody).Decode(&chunk); err != nil {
			return err
		}
		if err := d.Module.stageData(chunk); err != nil {
			return err
		}
		if debugEnabled() {
			slog.Debug("fdo.sim transfer", "name", d.name, "received", d.Module.transferred(), "length", d.length)
		}
		if d.Module.transferred() < d.length {
			return nil
		}
		return d.Module.QueueDownloadResult(d.Module.transferred())

	case "command":
		var command string
		if err := cbor.NewDecoder(messageBody).Decode(&command); err != nil {
			return err
		}
		d.Module.stageInstruction(command)
		return nil

	case "args":
		var args cbor.Bstr[[]string]
		if err := cbor.NewDecoder(messageBody).Decode(&args); err != nil {
			return err
		}
		for _, arg := range args.Val {
			d.Module.stageInstruction(arg)
		}
		return nil

	case "execute":
		var empty struct{}
		if err := cbor.NewDecoder(messageBody).Decode(&empty); err != nil {
			return err
		}
		instr := d.Module.instructions()
		if len(instr) == 0 {
			return fmt.Errorf("received execute before a command")
		}
		code := 0
		if d.Exec != nil {
			code = d.Exec(instr[0], instr[1:])
		}
		if debugEnabled() {
			slog.Debug("fdo.sim execute", "instructions", instr, "exitcode", code)
		}
		d.Module.QueueCommandResult(code)
		return nil

	default:
		return fmt.Errorf("unknown message %s", messageName)
	}
}

// Yield implements serviceinfo.DeviceModule.
func (d *Device) Yield(ctx context.Context, respond func(message string) io.Writer, yield func()) error {
	var hasMore bool
	if err := d.Module.HasMoreServiceInfo(&hasMore); err != nil {
		return err
	}
	if !hasMore || d.Module.Pending() == KindNone {
		// The round is primed before a result is queued; nothing to send
		// until the owner's instructions complete.
		return nil
	}

	mtu := uint16(serviceinfo.DefaultMTU)
	if v, ok := ctx.Value(serviceinfo.MTUKey{}).(uint16); ok {
		mtu = v
	}

	var name [maxMessageNameSize]byte
	value := make([]byte, mtu)
	n, err := d.Module.NextServiceInfo(mtu, name[:], value)
	if err != nil {
		return err
	}
	msg := messageNameString(name[:])
	if _, err := respond(msg).Write(value[:n]); err != nil {
		return d.Module.End(fmt.Errorf("error writing %s:%s response: %w", ModuleName, msg, err))
	}
	return nil
}
