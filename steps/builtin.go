// Package steps holds the built-in step handlers.
//
// They are registered from a table, one row per step, under the "driver" and
// "builtin" test objects.
package steps

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/registry"
	"github.com/ethereum-optimism/infra/op-stepper/types"
)

const (
	DriverObject  = "driver"
	BuiltinObject = "builtin"
)

// Definitions returns the built-in step table
func Definitions(client *StatusClient) []registry.Definition {
	if client == nil {
		client = NewStatusClient(nil)
	}
	return []registry.Definition{
		{
			TestObject: DriverObject,
			Name:       "status",
			Handler:    registry.NoParam(driverStatus(client)),
			Metadata:   registry.Metadata{Description: "GET {hubURL}/status and require value.ready"},
		},
		{
			TestObject: BuiltinObject,
			Name:       "wait",
			Handler:    registry.Single(wait),
			Metadata:   registry.Metadata{DataKey: "wait", Description: "sleep for a Go duration"},
		},
		{
			TestObject: BuiltinObject,
			Name:       "log",
			Handler:    registry.Single(logLine),
			Metadata:   registry.Metadata{DataKey: "message", Description: "record a line on the step"},
		},
		{
			TestObject: BuiltinObject,
			Name:       "knownIssue",
			Handler:    registry.Single(knownIssue),
			Metadata:   registry.Metadata{DataKey: "issue", Description: "mark the step BROKEN with the issue id"},
		},
		{
			TestObject: BuiltinObject,
			Name:       "skip",
			Handler:    registry.Single(skip),
			Metadata:   registry.Metadata{DataKey: "reason", Description: "skip the step"},
		},
		{
			TestObject: BuiltinObject,
			Name:       "requirePlatform",
			Handler:    registry.Multi(requirePlatform),
			Metadata: registry.Metadata{
				DataKey:     "platforms",
				StopOnError: types.BoolPtr(false),
				Description: "skip unless the driver platform is listed",
			},
		},
		{
			TestObject: BuiltinObject,
			Name:       "assertCapabilities",
			Handler:    registry.Map(assertCapabilities),
			Metadata:   registry.Metadata{DataKey: "capabilities", Description: "fail unless the driver has these capabilities"},
		},
	}
}

// Register adds the built-in steps to reg
func Register(reg *registry.Registry, client *StatusClient) error {
	return reg.RegisterTable(Definitions(client))
}

func driverStatus(client *StatusClient) func(ctx context.Context, sc *registry.StepContext) error {
	return func(ctx context.Context, sc *registry.StepContext) error {
		status, err := client.Check(ctx, sc.Driver.HubURL)
		if err != nil {
			return err
		}
		sc.Logf("hub %s ready: %s", sc.Driver.HubURL, status.Value.Message)
		return nil
	}
}

func wait(ctx context.Context, sc *registry.StepContext, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid wait duration %q: %w", value, err)
	}
	if d < 0 {
		return fmt.Errorf("wait duration cannot be negative: %s", d)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		sc.Logf("waited %s", d)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait interrupted: %w", context.Cause(ctx))
	}
}

func logLine(ctx context.Context, sc *registry.StepContext, value string) error {
	sc.Logf("%s", value)
	return nil
}

func knownIssue(ctx context.Context, sc *registry.StepContext, value string) error {
	return types.KnownIssue("%s", value)
}

func skip(ctx context.Context, sc *registry.StepContext, value string) error {
	return types.Skip("%s", value)
}

func requirePlatform(ctx context.Context, sc *registry.StepContext, platforms []string) error {
	if slices.ContainsFunc(platforms, func(p string) bool {
		return strings.EqualFold(p, sc.Driver.PlatformName)
	}) {
		return nil
	}
	return types.Skip("platform %q not in %v", sc.Driver.PlatformName, platforms)
}

func assertCapabilities(ctx context.Context, sc *registry.StepContext, want map[string]string) error {
	have := sc.Driver.DesiredCapabilities()

	var mismatches []string
	for k, v := range want {
		got, ok := have[k]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing, want %q", k, v))
		case got != v:
			mismatches = append(mismatches, fmt.Sprintf("%s: got %q, want %q", k, got, v))
		}
	}
	if len(mismatches) > 0 {
		sort.Strings(mismatches)
		return fmt.Errorf("capability mismatch on %s: %s", sc.Driver.Key(), strings.Join(mismatches, "; "))
	}
	sc.Logf("%d capabilities match", len(want))
	return nil
}
