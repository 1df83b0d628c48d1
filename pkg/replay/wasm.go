package replay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WASMRunner selects the in-process WASI runner: the transform blob is
// executed as a WebAssembly module instead of a subprocess. The invocation
// contract is unchanged — same flags, same out.bin check — but isolation is
// deny-by-default: only the replay workdir is mounted, no network, no
// environment, no host clock beyond what WASI mandates.
const WASMRunner = "wasm"

// runWASI compiles and runs the transform module with the workdir mounted at
// the guest root. The module sees the standard flag set with guest-absolute
// paths.
func runWASI(ctx context.Context, wd, transformName string, wasmBytes []byte) []string {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	var stdout, stderr bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName(transformName).
		WithArgs(transformName,
			"--parents-manifest", "/parents.json",
			"--parents-dir", "/parents",
			"--params-path", "/params.json",
			"--out", "/out.bin",
		).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(wd, "/")).
		WithStdout(&stdout).
		WithStderr(&stderr)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		return []string{fmt.Sprintf("wasm transform compile failed: %v", err)}
	}

	if _, err := r.InstantiateModule(ctx, compiled, cfg); err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 0 {
			return nil
		}

		errs := []string{fmt.Sprintf("wasm transform failed (%v)", err)}
		if s := strings.TrimSpace(stdout.String()); s != "" {
			errs = append(errs, "stdout:\n"+s)
		}
		if s := strings.TrimSpace(stderr.String()); s != "" {
			errs = append(errs, "stderr:\n"+s)
		}
		return errs
	}
	return nil
}
