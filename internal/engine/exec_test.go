package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
}

func TestProcessExecutor_ExitCodeAndCombinedOutput(t *testing.T) {
	requireShell(t)

	var out bytes.Buffer
	code, err := ProcessExecutor{}.Execute(context.Background(), Invocation{
		Program: "/bin/sh",
		Args:    []string{"-c", "echo out; echo err 1>&2; exit 3"},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, out.String(), "out\n")
	assert.Contains(t, out.String(), "err\n")
}

func TestProcessExecutor_ExplicitEnvironment(t *testing.T) {
	requireShell(t)
	t.Setenv("BENCH_SWEEP_AMBIENT", "leaked")

	var out bytes.Buffer
	code, err := ProcessExecutor{}.Execute(context.Background(), Invocation{
		Program: "/bin/sh",
		Args:    []string{"-c", `echo "$SGLANG_USE_AITER:$BENCH_SWEEP_AMBIENT"`},
		Env:     map[string]string{"SGLANG_USE_AITER": "1"},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "1:\n", out.String())
	assert.Equal(t, "leaked", os.Getenv("BENCH_SWEEP_AMBIENT"))
	assert.Empty(t, os.Getenv("SGLANG_USE_AITER"))
}

func TestProcessExecutor_LaunchFailure(t *testing.T) {
	var out bytes.Buffer
	code, err := ProcessExecutor{}.Execute(context.Background(), Invocation{
		Program: "/definitely/not/a/benchmark",
	}, &out)

	assert.Equal(t, -1, code)
	var launchErr *LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, "/definitely/not/a/benchmark", launchErr.Program)
}

func TestProcessExecutor_Cancel(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var out bytes.Buffer
	code, err := ProcessExecutor{WaitDelay: time.Second}.Execute(ctx, Invocation{
		Program: "/bin/sh",
		Args:    []string{"-c", "sleep 30"},
	}, &out)

	assert.Equal(t, -1, code)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProcessExecutor_BackgroundChildHoldsOutput(t *testing.T) {
	requireShell(t)

	// A bytes.Buffer forces a pipe, which the background sleep keeps open
	// after the shell exits.
	var out bytes.Buffer
	start := time.Now()
	code, err := ProcessExecutor{WaitDelay: 200 * time.Millisecond}.Execute(context.Background(), Invocation{
		Program: "/bin/sh",
		Args:    []string{"-c", "sleep 3 & echo started; exit 0"},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "started\n")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestProcessExecutor_BackgroundChildKeepsExitCode(t *testing.T) {
	requireShell(t)

	var out bytes.Buffer
	code, err := ProcessExecutor{WaitDelay: 200 * time.Millisecond}.Execute(context.Background(), Invocation{
		Program: "/bin/sh",
		Args:    []string{"-c", "sleep 3 & exit 4"},
	}, &out)

	require.NoError(t, err)
	assert.Equal(t, 4, code)
}

func TestInvocation_String(t *testing.T) {
	inv := Invocation{
		Program: "python3",
		Args:    []string{"-m", "sglang.bench_serving", "--tokenizer", "/data/my tokenizer/", "--note", "it's", "--empty", ""},
	}
	assert.Equal(t, `python3 -m sglang.bench_serving --tokenizer '/data/my tokenizer/' --note 'it'\''s' --empty ''`, inv.String())
}

func TestInvocation_Environ(t *testing.T) {
	assert.Nil(t, Invocation{}.Environ())

	inv := Invocation{Env: map[string]string{"B": "2", "A": "1"}}
	assert.Equal(t, []string{"A=1", "B=2"}, inv.Environ())
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "RCCL_MSCCL_ENABLE=1", "EQUALS=a=b", "broken"}
	overlay := map[string]string{"RCCL_MSCCL_ENABLE": "0", "SGLANG_USE_AITER": "1"}

	env := MergeEnv(base, overlay)

	assert.Equal(t, map[string]string{
		"PATH":              "/usr/bin",
		"RCCL_MSCCL_ENABLE": "0",
		"EQUALS":            "a=b",
		"SGLANG_USE_AITER":  "1",
	}, env)
	assert.Equal(t, "RCCL_MSCCL_ENABLE=1", base[1])
	assert.Len(t, overlay, 2)
}
