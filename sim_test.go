// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/fido-device-onboard/go-fdo/cbor"
	"github.com/fido-device-onboard/go-fdo/serviceinfo"

	sim "github.com/fido-device-onboard/go-fdo-sim"
)

type response struct {
	message string
	body    *bytes.Buffer
}

func respondTo(responses *[]*response) func(string) io.Writer {
	return func(message string) io.Writer {
		r := &response{message: message, body: new(bytes.Buffer)}
		*responses = append(*responses, r)
		return r.body
	}
}

func send(t *testing.T, d *sim.Device, messageName string, v any) {
	t.Helper()
	messageBody, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("error marshaling %s body: %v", messageName, err)
	}
	var responses []*response
	if err := d.Receive(context.Background(), messageName, bytes.NewReader(messageBody), respondTo(&responses), func() {}); err != nil {
		t.Fatalf("error receiving %s: %v", messageName, err)
	}
}

func TestDeviceSimulatedTransfer(t *testing.T) {
	ctx := context.WithValue(context.Background(), serviceinfo.MTUKey{}, uint16(1300))
	d := new(sim.Device)
	if err := d.Transition(true); err != nil {
		t.Fatalf("error activating module: %v", err)
	}
	payload := bytes.Repeat([]byte("simulated"), 100)

	send(t, d, "name", "payload.test")
	send(t, d, "length", int64(len(payload)))
	send(t, d, "data", payload[:500])
	send(t, d, "data", payload[500:])

	var responses []*response
	if err := d.Yield(ctx, respondTo(&responses), func() {}); err != nil {
		t.Fatalf("error yielding: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].message != "done" {
		t.Errorf("expected done response, got %q", responses[0].message)
	}
	var n int64
	if err := cbor.NewDecoder(responses[0].body).Decode(&n); err != nil {
		t.Fatalf("error decoding done value: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("expected %d transferred bytes reported, got %d", len(payload), n)
	}

	// Nothing left to send in the next round
	responses = nil
	if err := d.Yield(ctx, respondTo(&responses), func() {}); err != nil {
		t.Fatalf("error yielding: %v", err)
	}
	if len(responses) != 0 {
		t.Errorf("expected no further responses, got %d", len(responses))
	}

	if err := d.Transition(false); err != nil {
		t.Fatalf("error deactivating module: %v", err)
	}
}

func TestDeviceSimulatedCommand(t *testing.T) {
	ctx := context.Background()
	d := &sim.Device{Exec: func(command string, args []string) int {
		if command != "true" {
			t.Errorf("expected command true, got %q", command)
		}
		if len(args) != 1 || args[0] != "--quiet" {
			t.Errorf("unexpected args: %v", args)
		}
		return 3
	}}
	if err := d.Transition(true); err != nil {
		t.Fatalf("error activating module: %v", err)
	}

	send(t, d, "command", "true")
	send(t, d, "args", cbor.NewBstr([]string{"--quiet"}))
	send(t, d, "execute", nil)

	var responses []*response
	if err := d.Yield(ctx, respondTo(&responses), func() {}); err != nil {
		t.Fatalf("error yielding: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if responses[0].message != "exitcode" {
		t.Errorf("expected exitcode response, got %q", responses[0].message)
	}
	var code int
	if err := cbor.NewDecoder(responses[0].body).Decode(&code); err != nil {
		t.Fatalf("error decoding exitcode value: %v", err)
	}
	if code != 3 {
		t.Errorf("expected exit code 3, got %d", code)
	}
}

func TestDeviceExecuteBeforeCommand(t *testing.T) {
	d := new(sim.Device)
	if err := d.Transition(true); err != nil {
		t.Fatal(err)
	}
	messageBody, err := cbor.Marshal(nil)
	if err != nil {
		t.Fatal(err)
	}
	var responses []*response
	if err := d.Receive(context.Background(), "execute", bytes.NewReader(messageBody), respondTo(&responses), func() {}); err == nil {
		t.Fatal("expected error for execute before a command")
	}
}

// runExchange drives owner-produced instructions into the device and device
// responses back into the owner until the owner module reports done.
func runExchange(t *testing.T, owner *sim.OwnerInstructions, d *sim.Device) {
	t.Helper()
	ctx := context.WithValue(context.Background(), serviceinfo.MTUKey{}, uint16(1300))
	if err := d.Transition(true); err != nil {
		t.Fatalf("error activating module: %v", err)
	}

	for rounds := 0; ; rounds++ {
		if rounds > 64 {
			t.Fatal("exchange did not complete")
		}

		producer := serviceinfo.NewProducer(sim.ModuleName, 1300)
		_, moduleDone, err := owner.ProduceInfo(ctx, producer)
		if err != nil {
			t.Fatalf("error producing owner service info: %v", err)
		}
		if moduleDone {
			return
		}
		for _, kv := range producer.ServiceInfo() {
			messageName := strings.TrimPrefix(kv.Key, sim.ModuleName+":")
			var ignore []*response
			if err := d.Receive(ctx, messageName, bytes.NewReader(kv.Val), respondTo(&ignore), func() {}); err != nil {
				t.Fatalf("error receiving %s: %v", kv.Key, err)
			}
		}

		var responses []*response
		if err := d.Yield(ctx, respondTo(&responses), func() {}); err != nil {
			t.Fatalf("error yielding: %v", err)
		}
		for _, r := range responses {
			if err := owner.HandleInfo(ctx, r.message, r.body); err != nil {
				t.Fatalf("error handling %s response: %v", r.message, err)
			}
		}
	}
}

func TestOwnerDeviceTransferExchange(t *testing.T) {
	owner := &sim.OwnerInstructions{
		Name:     "payload.test",
		Contents: bytes.Repeat([]byte("hello simulated world\n"), 128),
	}
	runExchange(t, owner, new(sim.Device))
}

func TestOwnerDeviceLargeTransferExchange(t *testing.T) {
	// A payload well past the device's stream capacity must still complete:
	// data chunks are staged per message, not accumulated.
	contents := bytes.Repeat([]byte("hello simulated world\n"), 1024)
	if len(contents) <= sim.DefaultMaxServiceInfoSize {
		t.Fatalf("test payload of %d bytes does not exceed the stream capacity", len(contents))
	}
	owner := &sim.OwnerInstructions{Name: "large.test", Contents: contents}
	runExchange(t, owner, new(sim.Device))
}

func TestOwnerDeviceEmptyTransferExchange(t *testing.T) {
	owner := &sim.OwnerInstructions{Name: "empty.test"}
	runExchange(t, owner, new(sim.Device))
}

func TestOwnerDeviceCommandExchange(t *testing.T) {
	owner := &sim.OwnerInstructions{
		Command:     "reboot",
		Args:        []string{"--force"},
		MustSucceed: true,
	}
	runExchange(t, owner, new(sim.Device))
}

func TestOwnerRejectsShortTransfer(t *testing.T) {
	ctx := context.Background()
	owner := &sim.OwnerInstructions{Name: "short.test", Contents: []byte("full contents")}
	messageBody, err := cbor.Marshal(int64(1))
	if err != nil {
		t.Fatal(err)
	}
	if err := owner.HandleInfo(ctx, "done", bytes.NewReader(messageBody)); err == nil {
		t.Fatal("expected short transfer report to be rejected")
	}
}

func TestOwnerRejectsFailedCommand(t *testing.T) {
	ctx := context.Background()
	owner := &sim.OwnerInstructions{Command: "reboot", MustSucceed: true}
	messageBody, err := cbor.Marshal(int64(2))
	if err != nil {
		t.Fatal(err)
	}
	if err := owner.HandleInfo(ctx, "exitcode", bytes.NewReader(messageBody)); err == nil {
		t.Fatal("expected nonzero exit code to be rejected")
	}
}
