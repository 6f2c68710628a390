package flags

import (
	"strings"
	"testing"
	"time"

	"github.com/ethereum-optimism/infra/op-stepper/runner"
	opservice "github.com/ethereum-optimism/optimism/op-service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// TestOptionalFlagsDontSetRequired asserts that all flags deemed optional set
// the Required field to false.
func TestOptionalFlagsDontSetRequired(t *testing.T) {
	for _, flag := range optionalFlags {
		reqFlag, ok := flag.(cli.RequiredFlag)
		require.True(t, ok)
		require.False(t, reqFlag.IsRequired())
	}
}

// TestUniqueFlags asserts that all flag names are unique, to avoid accidental conflicts between the many flags.
func TestUniqueFlags(t *testing.T) {
	seenCLI := make(map[string]struct{})
	for _, flag := range Flags {
		name := flag.Names()[0]
		if _, ok := seenCLI[name]; ok {
			t.Errorf("duplicate flag %s", name)
			continue
		}
		seenCLI[name] = struct{}{}
	}
}

// TestBetaFlags test that all flags starting with "beta." have "BETA_" in the env var, and vice versa.
func TestBetaFlags(t *testing.T) {
	for _, flag := range Flags {
		envFlag, ok := flag.(interface {
			GetEnvVars() []string
		})
		if !ok || len(envFlag.GetEnvVars()) == 0 { // skip flags without env-var support
			continue
		}
		name := flag.Names()[0]
		envName := envFlag.GetEnvVars()[0]
		if strings.HasPrefix(name, "beta.") {
			require.Contains(t, envName, "BETA_", "%q flag must contain BETA in env var to match \"beta.\" flag name", name)
		}
		if strings.Contains(envName, "BETA_") {
			require.True(t, strings.HasPrefix(name, "beta."), "%q flag must start with \"beta.\" in flag name to match \"BETA_\" env var", name)
		}
	}
}

func TestEnvVarFormat(t *testing.T) {
	for _, flag := range Flags {
		flagName := flag.Names()[0]

		t.Run(flagName, func(t *testing.T) {
			envFlagGetter, ok := flag.(interface {
				GetEnvVars() []string
			})
			require.True(t, ok, "must be able to cast the flag to an EnvVar interface")
			envFlags := envFlagGetter.GetEnvVars()
			require.Equal(t, 1, len(envFlags), "flags should have exactly one env var")
			require.Equal(t, opservice.FlagNameToEnvVarName(flagName, EnvVarPrefix), envFlags[0])
		})
	}
}

func TestNonNegativeFlags(t *testing.T) {
	testCases := []struct {
		name        string
		args        []string
		shouldError bool
	}{
		{"defaults", []string{"app"}, false},
		{"zero workers", []string{"app", "--max-workers", "0"}, false},
		{"negative workers", []string{"app", "--max-workers", "-1"}, true},
		{"negative retries", []string{"app", "--retry-over-steps", "-2"}, true},
		{"lock timeout", []string{"app", "--lock-timeout", "30s"}, false},
		{"negative lock timeout", []string{"app", "--lock-timeout", "-1s"}, true},
		{"negative step timeout", []string{"app", "--step-timeout", "-5m"}, true},
		{"negative run interval", []string{"app", "--run-interval", "-1h"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app := &cli.App{
				Flags:  []cli.Flag{MaxWorkers, RetryOverSteps, LockTimeout, StepTimeout, RunInterval},
				Action: func(ctx *cli.Context) error { return nil },
			}
			err := app.Run(tc.args)
			if tc.shouldError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	app := &cli.App{
		Flags: optionalFlags,
		Action: func(ctx *cli.Context) error {
			assert.True(t, ctx.Bool(StopOnError.Name))
			assert.False(t, ctx.Bool(RetryEnabled.Name))
			assert.Equal(t, 1, ctx.Int(RetryOverSteps.Name))
			assert.Equal(t, 5*time.Minute, ctx.Duration(StepTimeout.Name))
			assert.Equal(t, runner.DefaultStepTimeout, ctx.Duration(StepTimeout.Name))
			assert.Equal(t, "logs", ctx.String(LogDir.Name))
			return nil
		},
	}
	require.NoError(t, app.Run([]string{"app"}))
}
