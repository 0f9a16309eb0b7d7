// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import (
	"context"
	"fmt"
	"io"

	"github.com/fido-device-onboard/go-fdo/cbor"
	"github.com/fido-device-onboard/go-fdo/serviceinfo"
)

// OwnerInstructions implements the owner service side of the simulated
// exchange. It sends either a payload for the device to count or a command
// for it to simulate executing, then verifies the reported outcome.
type OwnerInstructions struct {
	// Name and Contents configure a simulated transfer.
	Name     string
	Contents []byte

	// Command and Args configure a simulated execution. When Command is
	// set, the transfer fields are ignored.
	Command string
	Args    []string

	// MustSucceed fails onboarding when the device reports a nonzero exit
	// code.
	MustSucceed bool

	// Internal state
	started bool
	index   int
	done    bool
}

var _ serviceinfo.OwnerModule = (*OwnerInstructions)(nil)

// HandleInfo implements serviceinfo.OwnerModule.
func (o *OwnerInstructions) HandleInfo(ctx context.Context, messageName string, messageBody io.Reader) error {
	switch messageName {
	case "active":
		var active bool
		if err := cbor.NewDecoder(messageBody).Decode(&active); err != nil {
			return fmt.Errorf("error decoding message %s:%s: %w", ModuleName, messageName, err)
		}
		if !active {
			return fmt.Errorf("device deactivated %s", ModuleName)
		}
		return nil

	case "done":
		var n int64
		if err := cbor.NewDecoder(messageBody).Decode(&n); err != nil {
			return fmt.Errorf("error decoding message %s:%s: %w", ModuleName, messageName, err)
		}
		if n != int64(len(o.Contents)) {
			return fmt.Errorf("device reported %d transferred bytes, expected %d", n, len(o.Contents))
		}
		o.done = true
		return nil

	case "exitcode":
		var code int
		if err := cbor.NewDecoder(messageBody).Decode(&code); err != nil {
			return fmt.Errorf("error decoding message %s:%s: %w", ModuleName, messageName, err)
		}
		if code != 0 && o.MustSucceed {
			return fmt.Errorf("simulated command failed with exit code %d", code)
		}
		o.done = true
		return nil

	default:
		return fmt.Errorf("unsupported message %q", messageName)
	}
}

// ProduceInfo implements serviceinfo.OwnerModule.
func (o *OwnerInstructions) ProduceInfo(ctx context.Context, producer *serviceinfo.Producer) (blockPeer, moduleDone bool, _ error) {
	if o.done {
		return false, true, nil
	}

	if o.Command != "" {
		if o.started {
			// Waiting on the exitcode report
			return false, false, nil
		}
		if err := o.produceCommand(producer); err != nil {
			return false, false, err
		}
		o.started = true
		return false, false, nil
	}

	if !o.started {
		if err := o.produceTransferHeader(producer); err != nil {
			return false, false, err
		}
		o.started = true
		return false, false, nil
	}
	return false, false, o.produceData(producer)
}

func (o *OwnerInstructions) produceCommand(producer *serviceinfo.Producer) error {
	messageVal := map[string]any{
		"command": o.Command,
		"args":    cbor.NewBstr(o.Args),
	}
	for _, messageName := range []string{"command", "args"} {
		messageBody, err := cbor.Marshal(messageVal[messageName])
		if err != nil {
			return err
		}
		if len(messageBody) > producer.Available(messageName) {
			return fmt.Errorf("not enough space to send %s:%s", ModuleName, messageName)
		}
		if err := producer.WriteChunk(messageName, messageBody); err != nil {
			return err
		}
	}
	return producer.WriteChunk("execute", []byte{0xf6}) // null
}

func (o *OwnerInstructions) produceTransferHeader(producer *serviceinfo.Producer) error {
	messageVal := map[string]any{
		"name":   o.Name,
		"length": int64(len(o.Contents)),
	}
	for _, messageName := range []string{"name", "length"} {
		messageBody, err := cbor.Marshal(messageVal[messageName])
		if err != nil {
			return err
		}
		if len(messageBody) > producer.Available(messageName) {
			return fmt.Errorf("not enough space to send %s:%s", ModuleName, messageName)
		}
		if err := producer.WriteChunk(messageName, messageBody); err != nil {
			return err
		}
	}
	return nil
}

func (o *OwnerInstructions) produceData(producer *serviceinfo.Producer) error {
	if o.index >= len(o.Contents) {
		// Waiting on the done report
		return nil
	}
	available := producer.Available("data") - 3 // up to 3 bytes of bstr length header
	if available < 1 {
		return nil
	}
	chunk := o.Contents[o.index:min(o.index+available, len(o.Contents))]
	messageBody, err := cbor.Marshal(chunk)
	if err != nil {
		return err
	}
	if len(messageBody) > producer.Available("data") {
		return nil
	}
	if err := producer.WriteChunk("data", messageBody); err != nil {
		return err
	}
	o.index += len(chunk)
	return nil
}
